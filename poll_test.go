package pppmon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPollMonitor(t *testing.T, backendURL string) *Monitor {
	t.Helper()
	m, err := New(WithBackendURL(backendURL), WithoutServer(), WithLogger(testLogger()))
	require.NoError(t, err)
	return m
}

func TestPollOnce_ExplicitNames(t *testing.T) {
	fb, ts := newFakeBackend(t)
	m := newPollMonitor(t, ts.URL)

	v, err := m.PollOnce(context.Background(), "r1", []string{"A", "B", "C"}, Filters{})
	require.NoError(t, err)

	assert.Equal(t, "r1", v.RouterID)
	assert.Equal(t, StateConnected, v.State)
	assert.Equal(t, []string{"A", "B", "C"}, rowNames(v.Rows))
	assert.Equal(t, 2, v.TotalOnline)
	assert.Equal(t, 0, fb.callCount("secrets"))
	assert.Equal(t, 1, fb.callCount("connect"))
}

func TestPollOnce_SecretsAsNames(t *testing.T) {
	fb, ts := newFakeBackend(t)
	fb.set(func(fb *fakeBackend) { fb.secrets = []string{"C", "Z"} })
	m := newPollMonitor(t, ts.URL)

	v, err := m.PollOnce(context.Background(), "r1", nil, Filters{})
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "Z"}, v.Expected)
	require.Len(t, v.Rows, 2)
	assert.True(t, v.Rows[0].Online)
	assert.False(t, v.Rows[1].Online)
	assert.Equal(t, 1, fb.callCount("secrets"))
}

func TestPollOnce_Filters(t *testing.T) {
	_, ts := newFakeBackend(t)
	m := newPollMonitor(t, ts.URL)

	v, err := m.PollOnce(context.Background(), "r1", []string{"A", "B", "C"}, Filters{Vendor: "corp"})
	require.NoError(t, err)

	assert.Equal(t, []string{"C"}, rowNames(v.Rows))
	assert.Equal(t, 1, v.ShownOnline)
	assert.Equal(t, 2, v.TotalOnline)
}

func TestPollOnce_StatusFailureDegradesView(t *testing.T) {
	fb, ts := newFakeBackend(t)
	fb.set(func(fb *fakeBackend) { fb.statusFails = true })
	m := newPollMonitor(t, ts.URL)

	v, err := m.PollOnce(context.Background(), "r1", []string{"A"}, Filters{})
	require.NoError(t, err)

	assert.Equal(t, StateDisconnected, v.State)
	assert.True(t, v.StatusKnown)
	assert.NotEmpty(t, v.LastError)

	// data still reconciles while the status feed is down
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "A", v.Rows[0].Name)
	assert.True(t, v.Rows[0].Online)
	assert.Equal(t, "10.1.0.1", v.Rows[0].IP)
	assert.Equal(t, 1, v.ShownOnline)
	assert.Equal(t, 2, v.TotalOnline)
}

func TestPollOnce_DataFailure(t *testing.T) {
	fb, ts := newFakeBackend(t)
	fb.set(func(fb *fakeBackend) { fb.dataFails = true })
	m := newPollMonitor(t, ts.URL)

	_, err := m.PollOnce(context.Background(), "r1", []string{"A"}, Filters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch data")
}

func TestPollOnce_Rejected(t *testing.T) {
	fb, ts := newFakeBackend(t)
	fb.set(func(fb *fakeBackend) { fb.rejectMsg = "no such router" })
	m := newPollMonitor(t, ts.URL)

	_, err := m.PollOnce(context.Background(), "r9", []string{"A"}, Filters{})
	require.ErrorIs(t, err, ErrConnectRejected)
	assert.Equal(t, 0, fb.callCount("data-start:r9"))
}

func TestPollOnce_NoRouter(t *testing.T) {
	_, ts := newFakeBackend(t)
	m := newPollMonitor(t, ts.URL)

	_, err := m.PollOnce(context.Background(), "", []string{"A"}, Filters{})
	assert.ErrorIs(t, err, ErrNoRouter)
}
