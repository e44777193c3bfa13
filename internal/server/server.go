package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pppmon/pppmon/internal/export"
	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/reconcile"
	"github.com/pppmon/pppmon/internal/session"
	"github.com/pppmon/pppmon/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	maxRequestBodySize = 1 << 20

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "PPP Monitor"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	exportFilename = "ppp-monitor.csv"
)

// Controller executes dashboard actions against the monitor.
//
// Implementations serialize every call onto the monitor's event loop, so
// handlers may call them concurrently.
type Controller interface {
	SelectRouter(ctx context.Context, routerID string) error
	Process(ctx context.Context, names []string, filters reconcile.Filters) error
	LoadSecrets(ctx context.Context) error
	Toggle(ctx context.Context, name string, checked bool) error
	Suggest(ctx context.Context, query string, limit int) ([]string, error)
	Rows(ctx context.Context) ([]reconcile.Row, error)
	Routers(ctx context.Context) ([]models.Router, error)
	Logs(ctx context.Context) ([]models.LogEntry, error)
}

// Server handles HTTP requests for the dashboard and API.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	ctrl       Controller
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the latest snapshot
//   - ctrl: Controller for dashboard actions
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "PPP Monitor" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, ctrl Controller, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		ctrl:   ctrl,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
}

// Handler returns the request multiplexer with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/view", s.handleView)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/routers", s.handleRouters)
	mux.HandleFunc("/api/select", s.handleSelect)
	mux.HandleFunc("/api/process", s.handleProcess)
	mux.HandleFunc("/api/secrets", s.handleSecrets)
	mux.HandleFunc("/api/check", s.handleCheck)
	mux.HandleFunc("/api/vendors", s.handleVendors)
	mux.HandleFunc("/api/export.csv", s.handleExport)
	mux.HandleFunc("/api/logs", s.handleLogs)

	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// title is HTML-escaped before substitution
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleView returns the latest snapshot as JSON.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	snap, ok := s.store.Latest()
	if !ok {
		snap = store.Snapshot{Status: "disconnected", Rows: []store.Row{}}
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRouters(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	routers, err := s.ctrl.Routers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if routers == nil {
		routers = []models.Router{}
	}
	s.writeJSON(w, http.StatusOK, routers)
}

type selectRequest struct {
	Router string `json:"router"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req selectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.SelectRouter(r.Context(), strings.TrimSpace(req.Router)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// processRequest accepts either a names list or the raw textarea contents.
type processRequest struct {
	Names  []string `json:"names"`
	Text   string   `json:"text"`
	Vendor string   `json:"vendor"`
	Search string   `json:"search"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req processRequest
	if !s.decode(w, r, &req) {
		return
	}

	names := req.Names
	if names == nil {
		names = reconcile.ParseNames(req.Text)
	}
	filters := reconcile.Filters{
		Vendor: strings.TrimSpace(req.Vendor),
		Search: strings.TrimSpace(req.Search),
	}
	if err := s.ctrl.Process(r.Context(), names, filters); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSecrets(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.ctrl.LoadSecrets(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type checkRequest struct {
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req checkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.Toggle(r.Context(), req.Name, req.Checked); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	suggestions, err := s.ctrl.Suggest(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	s.writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	opts := export.Options{
		CheckedOnly:    queryBool(q.Get("checked")),
		IncludeOffline: queryBool(q.Get("offline")),
	}

	rows, err := s.ctrl.Rows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	// render fully before writing headers so failures still get a status code
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows, opts); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	if _, err := io.Copy(w, &buf); err != nil {
		s.logger.Error("failed to write export", "error", err)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	logs, err := s.ctrl.Logs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

// handleSSE streams snapshots via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// some ResponseWriter implementations do not support deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	var lastVersion uint64
	if snap, ok := s.store.Latest(); ok {
		data, err := json.Marshal(snap)
		if err == nil {
			if err := writeAndFlush(data); err != nil {
				return
			}
			lastVersion = snap.Version
		}
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			// the initial write may already cover this update
			if snap.Version != 0 && snap.Version <= lastVersion {
				continue
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}
			lastVersion = snap.Version

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps monitor errors to HTTP status codes. Backend failures,
// including a rejected connect, are reported as 502.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, session.ErrNoRouter):
		status = http.StatusConflict
	case errors.Is(err, export.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
