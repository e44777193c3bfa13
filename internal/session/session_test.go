package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pppmon/pppmon/internal/liveness"
	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/reconcile"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) *Session {
	t.Helper()
	return New("r1", Config{WebRefresh: 3, DBRefresh: 3, StatusTimeout: 120 * time.Second}, t0)
}

func liveAC() []models.DeviceRecord {
	return []models.DeviceRecord{
		{Name: "A", IP: "10.0.0.1", Vendor: "Acme"},
		{Name: "C", IP: "10.0.0.3", Vendor: "Corp"},
	}
}

func TestNew(t *testing.T) {
	s := newSession(t)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "r1", s.RouterID())
	assert.False(t, s.Processed())

	v := s.Snapshot(t0)
	assert.Equal(t, liveness.StateDisconnected, v.State)
	assert.False(t, v.Known)
	assert.Equal(t, 3, v.WebTick)
	assert.Empty(t, v.Result.Rows)
}

func TestNew_UniqueIDs(t *testing.T) {
	a := newSession(t)
	b := newSession(t)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestTick_NoDataPollBeforeProcess(t *testing.T) {
	s := newSession(t)
	for i := 1; i <= 6; i++ {
		res := s.Tick(t0.Add(time.Duration(i) * time.Second))
		assert.Empty(t, res.Requests, "tick %d", i)
	}
}

func TestTick_DataPollEveryPeriod(t *testing.T) {
	s := newSession(t)
	s.Process([]string{"A"}, reconcile.Filters{})

	var polls []int
	for i := 1; i <= 6; i++ {
		res := s.Tick(t0.Add(time.Duration(i) * time.Second))
		for _, req := range res.Requests {
			require.Equal(t, FeedData, req.Feed)
			require.Equal(t, s.ID(), req.SessionID)
			polls = append(polls, i)
		}
	}
	assert.Equal(t, []int{3, 6}, polls)
}

func TestProcess_ResetsWebCountdown(t *testing.T) {
	s := newSession(t)
	s.Process([]string{"A"}, reconcile.Filters{})
	s.Tick(t0.Add(time.Second))
	s.Tick(t0.Add(2 * time.Second))

	// manual poll right before the automatic one
	s.Process([]string{"A"}, reconcile.Filters{})

	res := s.Tick(t0.Add(3 * time.Second))
	assert.Empty(t, res.Requests)
	assert.Equal(t, 2, s.Snapshot(t0).WebTick)
}

func TestSecretsRequest_ResetsWebCountdown(t *testing.T) {
	s := newSession(t)
	s.Tick(t0.Add(time.Second))
	s.Tick(t0.Add(2 * time.Second))

	req := s.SecretsRequest()
	assert.Equal(t, FeedSecrets, req.Feed)
	assert.Equal(t, 3, s.Snapshot(t0).WebTick)
}

func TestApplyData_Scenario(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A", "B", "C"}, reconcile.Filters{})

	require.NoError(t, s.ApplyData(req, liveAC(), t0))

	res := s.Result()
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "A", res.Rows[0].Name)
	assert.True(t, res.Rows[0].Online)
	assert.Equal(t, "B", res.Rows[1].Name)
	assert.False(t, res.Rows[1].Online)
	assert.Equal(t, "C", res.Rows[2].Name)
	assert.Equal(t, 2, res.ShownOnline)
	assert.Equal(t, 2, res.TotalOnline)
}

func TestApplyData_VendorCacheFromRawSnapshot(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A"}, reconcile.Filters{Vendor: "acm"})

	require.NoError(t, s.ApplyData(req, liveAC(), t0))

	// Corp was filtered out of the view but still feeds suggestions
	assert.Equal(t, []string{"Corp"}, s.Suggest("co", 0))
	assert.Equal(t, 2, s.Snapshot(t0).VendorCount)
}

func TestProcess_ReconcilesCachedSnapshot(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A", "B", "C"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC(), t0))

	s.Process([]string{"A", "B", "C"}, reconcile.Filters{Vendor: "acm"})

	res := s.Result()
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "A", res.Rows[0].Name)
	assert.Equal(t, 1, res.ShownOnline)
}

func TestSelection_SurvivesPolls(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC(), t0))

	s.Toggle("A", true)
	assert.True(t, s.Result().Rows[0].Checked)

	// A disappears
	req = s.Process([]string{"A"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC()[1:], t0.Add(time.Second)))
	assert.False(t, s.Result().Rows[0].Online)

	// and comes back
	req = s.Process([]string{"A"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC(), t0.Add(2*time.Second)))

	row := s.Result().Rows[0]
	assert.True(t, row.Online)
	assert.True(t, row.Checked)
	assert.Equal(t, []string{"A"}, s.Snapshot(t0).Checked)
}

func TestApplyData_OtherSessionIsStale(t *testing.T) {
	old := newSession(t)
	req := old.Process([]string{"A"}, reconcile.Filters{})

	// router changed before the response arrived
	current := New("r2", Config{}, t0)

	err := current.ApplyData(req, liveAC(), t0)
	assert.True(t, errors.Is(err, ErrStale))
	assert.Empty(t, current.Result().Rows)
	assert.Zero(t, current.Result().TotalOnline)
	assert.Zero(t, current.Snapshot(t0).VendorCount)
}

func TestApplyData_SameRouterNewSessionIsStale(t *testing.T) {
	old := New("r1", Config{}, t0)
	req := old.Process([]string{"A"}, reconcile.Filters{})

	reselected := New("r1", Config{}, t0)
	assert.ErrorIs(t, reselected.ApplyData(req, liveAC(), t0), ErrStale)
}

func TestApplyData_OlderSequenceIsStale(t *testing.T) {
	s := newSession(t)
	first := s.Process([]string{"A", "C"}, reconcile.Filters{})
	second := s.Process([]string{"A", "C"}, reconcile.Filters{})

	// second resolves first
	require.NoError(t, s.ApplyData(second, liveAC(), t0))
	assert.ErrorIs(t, s.ApplyData(first, nil, t0), ErrStale)

	assert.Equal(t, 2, s.Result().TotalOnline)
}

func TestApplyData_InOrderResponsesBothApply(t *testing.T) {
	s := newSession(t)
	first := s.Process([]string{"A", "C"}, reconcile.Filters{})
	second := s.Process([]string{"A", "C"}, reconcile.Filters{})

	require.NoError(t, s.ApplyData(first, nil, t0))
	require.NoError(t, s.ApplyData(second, liveAC(), t0))
	assert.Equal(t, 2, s.Result().TotalOnline)
}

func TestApplyData_WrongFeedIsStale(t *testing.T) {
	s := newSession(t)
	req := s.StatusRequest()
	assert.ErrorIs(t, s.ApplyData(req, liveAC(), t0), ErrStale)
}

func TestFailData_KeepsView(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A", "C"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC(), t0))

	req = s.Process([]string{"A", "C"}, reconcile.Filters{})
	require.NoError(t, s.FailData(req, errors.New("connection refused")))

	assert.Equal(t, 2, s.Result().ShownOnline)
	assert.Equal(t, "connection refused", s.Snapshot(t0).DataError)
}

func TestApplyStatus_ConnectResetsDBTick(t *testing.T) {
	s := newSession(t)
	s.Tick(t0.Add(time.Second))
	s.Tick(t0.Add(2 * time.Second))

	tr, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true, RouterIP: "192.168.88.1"}, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, liveness.StateConnected, tr.To)

	v := s.Snapshot(t0.Add(2 * time.Second))
	assert.Equal(t, 3, v.DBTick)
	assert.Equal(t, "192.168.88.1", v.RouterIP)
	assert.Equal(t, liveness.StateConnected, v.State)
}

func TestApplyStatus_Negative(t *testing.T) {
	s := newSession(t)
	_, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true}, t0)
	require.NoError(t, err)

	tr, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: false, LastError: "login failed"}, t0.Add(5*time.Second))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, liveness.ReasonPoll, tr.Reason)
	assert.Equal(t, "login failed", s.Snapshot(t0).LastError)
}

func TestApplyStatus_NoTransitionWhenUnchanged(t *testing.T) {
	s := newSession(t)
	_, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true}, t0)
	require.NoError(t, err)

	tr, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true}, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestApplyStatus_OlderSequenceIsStale(t *testing.T) {
	s := newSession(t)
	older := s.StatusRequest()
	newer := s.StatusRequest()

	_, err := s.ApplyStatus(newer, models.StatusReport{Connected: true}, t0)
	require.NoError(t, err)

	_, err = s.ApplyStatus(older, models.StatusReport{Connected: false}, t0)
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, liveness.StateConnected, s.Snapshot(t0).State)
}

func TestFailStatus_Disconnects(t *testing.T) {
	s := newSession(t)
	_, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true}, t0)
	require.NoError(t, err)

	tr, err := s.FailStatus(s.StatusRequest(), errors.New("timeout"), t0.Add(5*time.Second))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, liveness.ReasonError, tr.Reason)
	assert.Equal(t, liveness.StateDisconnected, s.Snapshot(t0.Add(5*time.Second)).State)
}

func TestTick_Watchdog(t *testing.T) {
	s := newSession(t)
	_, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true}, t0)
	require.NoError(t, err)

	res := s.Tick(t0.Add(120 * time.Second))
	assert.Nil(t, res.Transition)
	assert.Equal(t, liveness.StateConnected, s.Snapshot(t0.Add(120*time.Second)).State)

	res = s.Tick(t0.Add(121 * time.Second))
	require.NotNil(t, res.Transition)
	assert.Equal(t, liveness.ReasonWatchdog, res.Transition.Reason)
	assert.Equal(t, liveness.StateDisconnected, s.Snapshot(t0.Add(121*time.Second)).State)
}

func TestSnapshot_WatchdogBetweenTicks(t *testing.T) {
	s := newSession(t)
	_, err := s.ApplyStatus(s.StatusRequest(), models.StatusReport{Connected: true}, t0)
	require.NoError(t, err)

	assert.Equal(t, liveness.StateDisconnected, s.Snapshot(t0.Add(120*time.Second+time.Millisecond)).State)
}

func TestApplySecrets(t *testing.T) {
	s := newSession(t)
	s.Process(nil, reconcile.Filters{Search: "a"})

	req := s.SecretsRequest()
	next, err := s.ApplySecrets(req, []string{" A ", "", "B"})
	require.NoError(t, err)

	assert.Equal(t, FeedData, next.Feed)
	assert.Greater(t, next.Seq, req.Seq)

	v := s.Snapshot(t0)
	assert.True(t, v.Processed)
	assert.Equal(t, []string{"A", "B"}, v.Expected)
	assert.Equal(t, "a", v.Filters.Search, "filters are kept")
}

func TestApplyVendors_ReplacesCache(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC()[:1], t0))

	require.NoError(t, s.ApplyVendors(s.VendorsRequest(), []string{"Zyxel", "Huawei"}))

	assert.Equal(t, []string{"Zyxel"}, s.Suggest("zy", 5))
	assert.Equal(t, []string{"Acme"}, s.Suggest("ac", 5), "live vendors survive a bulk load")
	assert.Equal(t, 3, s.Snapshot(t0).VendorCount)
}

func TestSuggest_UsesConfiguredLimit(t *testing.T) {
	s := New("r1", Config{SuggestLimit: 1}, t0)
	require.NoError(t, s.ApplyVendors(s.VendorsRequest(), []string{"Acme", "Acme Labs"}))

	assert.Equal(t, []string{"Acme"}, s.Suggest("acme", 0))
	assert.Equal(t, []string{"Acme", "Acme Labs"}, s.Suggest("acme", 5))
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newSession(t)
	req := s.Process([]string{"A"}, reconcile.Filters{})
	require.NoError(t, s.ApplyData(req, liveAC(), t0))

	v := s.Snapshot(t0)
	v.Result.Rows[0].Name = "mutated"
	v.Expected[0] = "mutated"

	assert.Equal(t, "A", s.Result().Rows[0].Name)
	assert.Equal(t, []string{"A"}, s.Snapshot(t0).Expected)
}
