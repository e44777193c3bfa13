// Package mockbackend emulates a router collector backend for demos and
// manual testing of the monitor.
//
// Each router has a fixed list of PPP secrets. Every data request lets a few
// customers drop or reconnect, so the dashboard has something to show.
// Routers whose name starts with "lab" refuse to connect.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/pppmon/pppmon"
)

const (
	maxLogEntries = 200

	// flipChance is the per-request probability that a customer changes
	// between online and offline.
	flipChance = 0.05

	// dropChance is the per-request probability that a status poll reports
	// a lost router connection.
	dropChance = 0.02
)

var vendors = []string{"Huawei", "ZTE", "TP-Link", "MikroTik", "Ubiquiti", "Tenda", "Nokia"}

// Backend is an in-memory router backend. It is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	rng     *rand.Rand
	now     func() time.Time
	routers []pppmon.Router
	state   map[string]*routerState
	logs    []pppmon.LogEntry
}

type routerState struct {
	connected bool
	secrets   []string
	online    map[string]pppmon.DeviceRecord
	since     map[string]time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithSeed makes the simulated churn deterministic.
func WithSeed(seed int64) Option {
	return func(b *Backend) { b.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock replaces time.Now for uptime and log timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New returns a backend with three routers: core-1 and edge-2 with
// customersPerRouter secrets each, and lab-3, which refuses to connect.
func New(customersPerRouter int, opts ...Option) *Backend {
	b := &Backend{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
		routers: []pppmon.Router{
			{ID: "core-1", Name: "Core", IP: "10.0.0.1"},
			{ID: "edge-2", Name: "Edge", IP: "10.0.0.2"},
			{ID: "lab-3", Name: "Lab", IP: "10.0.0.3"},
		},
		state: make(map[string]*routerState),
	}
	for _, opt := range opts {
		opt(b)
	}

	for i, r := range b.routers {
		st := &routerState{
			online: make(map[string]pppmon.DeviceRecord),
			since:  make(map[string]time.Time),
		}
		for n := 1; n <= customersPerRouter; n++ {
			name := fmt.Sprintf("%s-cust-%03d", strings.SplitN(r.ID, "-", 2)[0], n)
			st.secrets = append(st.secrets, name)
			// roughly four in five customers start online
			if b.rng.Intn(5) != 0 {
				st.online[name] = b.record(i, n, name)
				st.since[name] = b.now().Add(-time.Duration(b.rng.Intn(72*3600)) * time.Second)
			}
		}
		b.state[r.ID] = st
	}
	return b
}

// Secrets returns the PPP secret names configured on routerID.
func (b *Backend) Secrets(routerID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[routerID]
	if !ok {
		return nil
	}
	return append([]string(nil), st.secrets...)
}

// Handler returns the HTTP API:
//
//	GET  /routers
//	POST /connect/{id}
//	GET  /status/{id}
//	GET  /secrets/{id}
//	GET  /data/{id}
//	GET  /vendors
//	GET  /logs
func (b *Backend) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/routers", b.handleRouters).Methods(http.MethodGet)
	r.HandleFunc("/connect/{id}", b.handleConnect).Methods(http.MethodPost)
	r.HandleFunc("/status/{id}", b.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/secrets/{id}", b.handleSecrets).Methods(http.MethodGet)
	r.HandleFunc("/data/{id}", b.handleData).Methods(http.MethodGet)
	r.HandleFunc("/vendors", b.handleVendors).Methods(http.MethodGet)
	r.HandleFunc("/logs", b.handleLogs).Methods(http.MethodGet)
	return r
}

func (b *Backend) handleRouters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.routers)
}

func (b *Backend) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[id]
	if !ok {
		writeJSON(w, http.StatusOK, pppmon.ConnectResult{Message: "unknown router " + id})
		return
	}
	if strings.HasPrefix(id, "lab") {
		b.logf("error", "connect to %s failed: no route to host", id)
		writeJSON(w, http.StatusOK, pppmon.ConnectResult{Message: "router " + id + " unreachable"})
		return
	}

	st.connected = true
	b.logf("info", "collector started for %s", id)
	writeJSON(w, http.StatusOK, pppmon.ConnectResult{Success: true, Message: "collector started for " + id})
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[id]
	if !ok {
		http.Error(w, "router not found", http.StatusNotFound)
		return
	}
	report := pppmon.StatusReport{Connected: st.connected, RouterIP: b.routerIP(id)}
	if st.connected && b.rng.Float64() < dropChance {
		report.Connected = false
		report.LastError = "api read timeout"
		b.logf("warn", "status poll for %s timed out", id)
	}
	if !st.connected {
		report.LastError = "collector not started"
	}
	writeJSON(w, http.StatusOK, report)
}

func (b *Backend) handleSecrets(w http.ResponseWriter, r *http.Request) {
	secrets := b.Secrets(mux.Vars(r)["id"])
	if secrets == nil {
		http.Error(w, "router not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, secrets)
}

func (b *Backend) handleData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[id]
	if !ok {
		http.Error(w, "router not found", http.StatusNotFound)
		return
	}
	if !st.connected {
		http.Error(w, "collector not started", http.StatusConflict)
		return
	}

	b.churn(id, st)

	now := b.now()
	records := make([]pppmon.DeviceRecord, 0, len(st.online))
	for _, name := range st.secrets {
		rec, online := st.online[name]
		if !online {
			continue
		}
		rec.Uptime = formatUptime(now.Sub(st.since[name]))
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, records)
}

func (b *Backend) handleVendors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vendors)
}

func (b *Backend) handleLogs(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	logs := append([]pppmon.LogEntry{}, b.logs...)
	writeJSON(w, http.StatusOK, logs)
}

// churn flips a few customers between online and offline.
func (b *Backend) churn(id string, st *routerState) {
	idx := b.routerIndex(id)
	for n, name := range st.secrets {
		if b.rng.Float64() >= flipChance {
			continue
		}
		if _, online := st.online[name]; online {
			delete(st.online, name)
			delete(st.since, name)
			b.logf("info", "%s: %s disconnected", id, name)
			continue
		}
		st.online[name] = b.record(idx, n+1, name)
		st.since[name] = b.now()
		b.logf("info", "%s: %s connected", id, name)
	}
}

func (b *Backend) record(routerIdx, n int, name string) pppmon.DeviceRecord {
	return pppmon.DeviceRecord{
		Name:   name,
		IP:     fmt.Sprintf("100.64.%d.%d", routerIdx, n),
		MAC:    fmt.Sprintf("02:00:%02x:%02x:%02x:%02x", routerIdx, n, b.rng.Intn(256), b.rng.Intn(256)),
		Vendor: vendors[b.rng.Intn(len(vendors))],
	}
}

func (b *Backend) routerIndex(id string) int {
	for i, r := range b.routers {
		if r.ID == id {
			return i
		}
	}
	return 0
}

func (b *Backend) routerIP(id string) string {
	return b.routers[b.routerIndex(id)].IP
}

// logf appends a backend log line. Callers hold b.mu.
func (b *Backend) logf(level, format string, args ...any) {
	b.logs = append(b.logs, pppmon.LogEntry{
		Time:    b.now().Format("15:04:05"),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
	if len(b.logs) > maxLogEntries {
		b.logs = b.logs[len(b.logs)-maxLogEntries:]
	}
}

// formatUptime renders d the way RouterOS does, e.g. 1d2h3m4s.
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Truncate(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour

	var sb strings.Builder
	if days > 0 {
		fmt.Fprintf(&sb, "%dd", days)
	}
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		fmt.Fprintf(&sb, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&sb, "%dm", m)
	}
	if s > 0 {
		fmt.Fprintf(&sb, "%ds", s)
	}
	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
