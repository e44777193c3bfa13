package mockbackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pppmon/pppmon"
)

func newServer(t *testing.T) (*Backend, *httptest.Server) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(10, WithSeed(1), WithClock(func() time.Time { return now }))
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	return b, ts
}

func getJSON(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestBackend_Routers(t *testing.T) {
	_, ts := newServer(t)

	var routers []pppmon.Router
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/routers", &routers))
	require.Len(t, routers, 3)
	assert.Equal(t, "core-1", routers[0].ID)
}

func TestBackend_ConnectThenData(t *testing.T) {
	b, ts := newServer(t)

	code := getJSON(t, http.MethodGet, ts.URL+"/data/core-1", nil)
	assert.Equal(t, http.StatusConflict, code, "data before connect")

	var res pppmon.ConnectResult
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodPost, ts.URL+"/connect/core-1", &res))
	assert.True(t, res.Success)

	var records []pppmon.DeviceRecord
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/data/core-1", &records))
	secrets := b.Secrets("core-1")
	assert.LessOrEqual(t, len(records), len(secrets))
	for _, rec := range records {
		assert.Contains(t, secrets, rec.Name)
		assert.NotEmpty(t, rec.Vendor)
	}
}

func TestBackend_ConnectRejected(t *testing.T) {
	_, ts := newServer(t)

	var res pppmon.ConnectResult
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodPost, ts.URL+"/connect/lab-3", &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unreachable")

	var logs []pppmon.LogEntry
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/logs", &logs))
	require.NotEmpty(t, logs)
	assert.Equal(t, "error", logs[len(logs)-1].Level)
}

func TestBackend_ConnectMethod(t *testing.T) {
	_, ts := newServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, http.MethodGet, ts.URL+"/connect/core-1", nil))
}

func TestBackend_StatusAndSecrets(t *testing.T) {
	_, ts := newServer(t)

	var report pppmon.StatusReport
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/status/edge-2", &report))
	assert.False(t, report.Connected)
	assert.Equal(t, "10.0.0.2", report.RouterIP)

	var secrets []string
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/secrets/edge-2", &secrets))
	assert.Len(t, secrets, 10)
	assert.Equal(t, "edge-cust-001", secrets[0])

	assert.Equal(t, http.StatusNotFound, getJSON(t, http.MethodGet, ts.URL+"/secrets/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, http.MethodGet, ts.URL+"/status/nope", nil))
}

func TestFormatUptime(t *testing.T) {
	tests := map[time.Duration]string{
		0:                                  "0s",
		45 * time.Second:                   "45s",
		3*time.Hour + 2*time.Second:        "3h2s",
		26*time.Hour + 3*time.Minute:       "1d2h3m",
		48 * time.Hour:                     "2d",
		time.Minute + 500*time.Millisecond: "1m",
	}
	for d, want := range tests {
		assert.Equal(t, want, formatUptime(d), "formatUptime(%s)", d)
	}
}
