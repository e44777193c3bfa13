package pppmon

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend emulates the router collector API.
type fakeBackend struct {
	mu sync.Mutex

	routers     []Router
	rejectMsg   string
	status      StatusReport
	statusFails bool
	statusHang  bool
	dataFails   bool
	secrets     []string
	data        map[string][]DeviceRecord
	dataGate    map[string]chan struct{}
	connectGate map[string]chan struct{}
	vendors     []string
	logs        []LogEntry

	calls   map[string]int
	release chan struct{}
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{
		routers: []Router{{ID: "r1", Name: "Core", IP: "10.0.0.1"}, {ID: "r2", Name: "Edge", IP: "10.0.0.2"}},
		status:  StatusReport{Connected: true, RouterIP: "10.0.0.1"},
		data: map[string][]DeviceRecord{
			"r1": {
				{Name: "A", IP: "10.1.0.1", MAC: "00:00:00:00:00:01", Vendor: "Acme", Uptime: "1h"},
				{Name: "C", IP: "10.1.0.3", MAC: "00:00:00:00:00:03", Vendor: "Corp", Uptime: "2h"},
			},
		},
		dataGate:    make(map[string]chan struct{}),
		connectGate: make(map[string]chan struct{}),
		vendors:  []string{"Zyxel"},
		calls:    make(map[string]int),
		release:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /routers", func(w http.ResponseWriter, r *http.Request) {
		fb.count("routers")
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeJSON(w, fb.routers)
	})
	mux.HandleFunc("POST /connect/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.count("connect")
		fb.mu.Lock()
		gate := fb.connectGate[r.PathValue("id")]
		fb.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-fb.release:
			}
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.rejectMsg != "" {
			writeJSON(w, ConnectResult{Success: false, Message: fb.rejectMsg})
			return
		}
		writeJSON(w, ConnectResult{Success: true, Message: "collector started for " + r.PathValue("id")})
	})
	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := fb.count("status")
		fb.mu.Lock()
		fails, hang, report := fb.statusFails, fb.statusHang, fb.status
		fb.mu.Unlock()
		if hang && n > 1 {
			select {
			case <-fb.release:
			case <-r.Context().Done():
			}
			return
		}
		if fails {
			http.Error(w, "collector crashed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, report)
	})
	mux.HandleFunc("GET /secrets/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.count("secrets")
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeJSON(w, fb.secrets)
	})
	mux.HandleFunc("GET /data/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		fb.count("data-start:" + id)
		fb.mu.Lock()
		gate, fails := fb.dataGate[id], fb.dataFails
		fb.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-fb.release:
			}
		}
		if fails {
			http.Error(w, "collector unavailable", http.StatusServiceUnavailable)
			fb.count("data:" + id)
			return
		}
		fb.mu.Lock()
		records := fb.data[id]
		fb.mu.Unlock()
		if records == nil {
			records = []DeviceRecord{}
		}
		writeJSON(w, records)
		fb.count("data:" + id)
	})
	mux.HandleFunc("GET /vendors", func(w http.ResponseWriter, r *http.Request) {
		fb.count("vendors")
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeJSON(w, fb.vendors)
	})
	mux.HandleFunc("GET /logs", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		writeJSON(w, fb.logs)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		close(fb.release)
		ts.Close()
	})
	return fb, ts
}

func (fb *fakeBackend) count(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.calls[key]++
	return fb.calls[key]
}

func (fb *fakeBackend) callCount(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[key]
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}
