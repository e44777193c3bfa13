package pppmon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/pppmon/pppmon/dashboard"
	"github.com/pppmon/pppmon/internal/liveness"
	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/poller"
	"github.com/pppmon/pppmon/internal/server"
	"github.com/pppmon/pppmon/internal/session"
	"github.com/pppmon/pppmon/internal/store"
)

const (
	defaultPort           = 1080
	defaultHeartbeat      = time.Second
	defaultStatusInterval = 5 * time.Second
	defaultListRefresh    = 30 * time.Second
	defaultMaxConcurrency = 4
)

// feedRouters tags router-list fetches, which belong to no session.
const feedRouters session.Feed = "routers"

var (
	// ErrNotRunning is returned by commands issued before Start or after
	// the monitor stopped.
	ErrNotRunning = errors.New("monitor is not running")

	// ErrSelectionSuperseded is returned by SelectRouter when a later
	// selection was requested before this one's connect reply arrived.
	ErrSelectionSuperseded = errors.New("router selection superseded")

	errAlreadyStarted = errors.New("monitor already started")
)

// Monitor polls a router backend and reconciles its live PPP sessions
// against an expected-name list.
//
// Monitor is created using [New] with functional options and started with
// [Monitor.Start]. All monitoring state is owned by a single event loop
// goroutine; the exported methods hand their work to that loop, so they are
// safe for concurrent use once Start is running.
//
// The typical lifecycle is:
//
//	m, err := pppmon.New(pppmon.WithBackendURL("http://127.0.0.1:5000"))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
type Monitor struct {
	cfg        monitorConfig
	backend    *poller.Backend
	clock      clockwork.Clock
	logger     *slog.Logger
	store      *store.MemoryStore
	dispatcher *poller.Dispatcher[session.Request]

	cmds    chan command
	stopped chan struct{}
	started atomic.Bool

	// bumped by every SelectRouter call; only the latest may swap sessions
	selectSeq atomic.Uint64

	// owned by the event loop
	sess    *session.Session
	routers []models.Router
}

type command struct {
	fn    func(now time.Time) error
	reply chan error
}

// New creates a [Monitor] with the given options.
//
// [WithBackendURL] is required. Other options have defaults matching the
// reference cadence: one-second heartbeat, data refresh every 30
// heartbeats, status poll every 5 seconds, 120-second status timeout.
func New(opts ...Option) (*Monitor, error) {
	cfg := monitorConfig{
		port:           defaultPort,
		serve:          true,
		heartbeat:      defaultHeartbeat,
		webRefresh:     poller.DefaultWebRefresh,
		dbRefresh:      poller.DefaultDBRefresh,
		statusTimeout:  liveness.DefaultTimeout,
		statusInterval: defaultStatusInterval,
		listRefresh:    defaultListRefresh,
		requestTimeout: poller.DefaultRequestTimeout,
		maxConcurrency: defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.backendURL == "" {
		return nil, errors.New("backend url is required")
	}

	backend, err := poller.NewBackend(cfg.backendURL, cfg.headers, cfg.requestTimeout)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Monitor{
		cfg:     cfg,
		backend: backend,
		clock:   clock,
		logger:  logger,
		store:   store.NewMemoryStore(),
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}, nil
}

// Port returns the configured dashboard port.
func (m *Monitor) Port() int { return m.cfg.port }

// BackendURL returns the configured backend base URL.
func (m *Monitor) BackendURL() string { return m.cfg.backendURL }

// Start runs the monitor until ctx is cancelled.
//
// Start serves the dashboard (unless [WithoutServer] was given), refreshes
// the router list, selects the initial router if one was configured, and
// then drives the heartbeat, status and router-list timers.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start or Start was already called.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}
	defer close(m.stopped)

	m.logger.Info("pppmon starting",
		"backend", m.cfg.backendURL,
		"heartbeat", m.cfg.heartbeat.String(),
		"web_refresh", m.cfg.webRefresh,
		"status_timeout", m.cfg.statusTimeout.String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	m.dispatcher = poller.NewDispatcher[session.Request](m.cfg.maxConcurrency, 0, m.logger)
	g, gctx := errgroup.WithContext(ctx)
	m.dispatcher.Start(gctx)

	if m.cfg.serve {
		srv := server.NewServer(m.store, m, m.cfg.port, dashboard.Assets, m.cfg.title, m.logger)
		if err := srv.Start(gctx); err != nil {
			m.dispatcher.Stop()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		m.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", m.cfg.port))
	}

	g.Go(func() error {
		return m.loop(gctx)
	})
	if id := m.cfg.initialRouter; id != "" {
		g.Go(func() error {
			err := m.SelectRouter(gctx, id)
			if err != nil && gctx.Err() == nil && !errors.Is(err, ErrSelectionSuperseded) {
				m.logger.Warn("initial router selection failed", "router", id, "error", err.Error())
			}
			return nil
		})
	}
	g.Go(func() error {
		// cancels in-flight fetches as soon as shutdown begins
		<-gctx.Done()
		m.dispatcher.Stop()
		return nil
	})

	err := g.Wait()
	m.backend.Close()
	m.logger.Info("pppmon stopped")
	return err
}

func (m *Monitor) loop(ctx context.Context) error {
	heartbeat := m.clock.NewTicker(m.cfg.heartbeat)
	defer heartbeat.Stop()
	status := m.clock.NewTicker(m.cfg.statusInterval)
	defer status.Stop()
	list := m.clock.NewTicker(m.cfg.listRefresh)
	defer list.Stop()

	m.dispatch(session.Request{Feed: feedRouters})
	m.publish(m.clock.Now())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.Chan():
			m.onHeartbeat(m.clock.Now())

		case <-status.Chan():
			if m.sess != nil {
				m.dispatch(m.sess.StatusRequest())
			}

		case <-list.Chan():
			m.dispatch(session.Request{Feed: feedRouters})

		case res, ok := <-m.dispatcher.Results():
			if !ok {
				return nil
			}
			m.handleResult(res, m.clock.Now())

		case cmd := <-m.cmds:
			cmd.reply <- cmd.fn(m.clock.Now())
		}
	}
}

func (m *Monitor) onHeartbeat(now time.Time) {
	// counters freeze while no router is selected
	if m.sess == nil {
		return
	}
	res := m.sess.Tick(now)
	for _, req := range res.Requests {
		m.dispatch(req)
	}
	if res.Transition != nil {
		m.logger.Warn("router connection timed out",
			"router", m.sess.RouterID(),
			"timeout", m.cfg.statusTimeout.String(),
		)
		m.fireConnection(*res.Transition, now)
	}
	m.publish(now)
}

// selectRouter replaces the session. The caller has already confirmed the
// connect with the backend.
func (m *Monitor) selectRouter(routerID string, now time.Time) {
	m.sess = session.New(routerID, session.Config{
		WebRefresh:    m.cfg.webRefresh,
		DBRefresh:     m.cfg.dbRefresh,
		StatusTimeout: m.cfg.statusTimeout,
		SuggestLimit:  m.cfg.suggestLimit,
	}, now)
	m.logger.Info("router selected", "router", routerID, "session_id", m.sess.ID())

	m.dispatch(m.sess.StatusRequest())
	m.dispatch(m.sess.VendorsRequest())
	if len(m.cfg.expectedNames) > 0 {
		m.dispatch(m.sess.Process(m.cfg.expectedNames, m.cfg.filters))
	}
}

func (m *Monitor) dispatch(req session.Request) {
	job := poller.Job[session.Request]{Tag: req, Fetch: m.fetcher(req)}
	if !m.dispatcher.Submit(job) {
		m.logger.Warn("request dropped, dispatch queue full",
			"feed", string(req.Feed),
			"router", req.RouterID,
		)
	}
}

func (m *Monitor) fetcher(req session.Request) func(context.Context) (any, error) {
	id := req.RouterID
	switch req.Feed {
	case session.FeedData:
		return func(ctx context.Context) (any, error) { return m.backend.Data(ctx, id) }
	case session.FeedStatus:
		return func(ctx context.Context) (any, error) { return m.backend.Status(ctx, id) }
	case session.FeedSecrets:
		return func(ctx context.Context) (any, error) { return m.backend.Secrets(ctx, id) }
	case session.FeedVendors:
		return func(ctx context.Context) (any, error) { return m.backend.Vendors(ctx) }
	case feedRouters:
		return func(ctx context.Context) (any, error) { return m.backend.Routers(ctx) }
	}
	return nil
}

func (m *Monitor) handleResult(res poller.Result[session.Request], now time.Time) {
	req := res.Tag
	logAttrs := []any{
		"feed", string(req.Feed),
		"router", req.RouterID,
		"seq", req.Seq,
		"latency_ms", res.Latency.Milliseconds(),
	}
	if res.Err != nil {
		m.logger.Warn("poll completed with error", append(logAttrs, "error", res.Err.Error())...)
	} else {
		m.logger.Debug("poll completed", logAttrs...)
	}

	if req.Feed == feedRouters {
		if routers, ok := res.Value.([]models.Router); ok && res.Err == nil {
			m.routers = routers
			m.publish(now)
		}
		return
	}

	if m.sess == nil {
		m.logger.Debug("response discarded, no router selected", logAttrs...)
		return
	}

	var (
		tr  *liveness.Transition
		err error
	)
	switch req.Feed {
	case session.FeedData:
		records, ok := res.Value.([]models.DeviceRecord)
		if res.Err != nil || !ok {
			err = m.sess.FailData(req, res.Err)
		} else {
			err = m.sess.ApplyData(req, records, now)
		}

	case session.FeedStatus:
		report, ok := res.Value.(models.StatusReport)
		if res.Err != nil || !ok {
			tr, err = m.sess.FailStatus(req, res.Err, now)
		} else {
			tr, err = m.sess.ApplyStatus(req, report, now)
		}

	case session.FeedSecrets:
		names, ok := res.Value.([]string)
		if res.Err != nil || !ok {
			return
		}
		var next session.Request
		if next, err = m.sess.ApplySecrets(req, names); err == nil {
			m.logger.Info("secrets loaded", "router", req.RouterID, "count", len(names))
			m.dispatch(next)
		}

	case session.FeedVendors:
		vendors, ok := res.Value.([]string)
		if res.Err != nil || !ok {
			return
		}
		err = m.sess.ApplyVendors(req, vendors)
	}

	if errors.Is(err, session.ErrStale) {
		m.logger.Debug("stale response discarded", logAttrs...)
		return
	}
	if tr != nil {
		m.logger.Info("router connection changed",
			"router", req.RouterID,
			"from", string(tr.From),
			"to", string(tr.To),
			"reason", string(tr.Reason),
		)
		m.fireConnection(*tr, now)
	}
	m.publish(now)
}

func (m *Monitor) fireConnection(tr liveness.Transition, now time.Time) {
	if len(m.cfg.callbacks) == 0 {
		return
	}
	ev := toConnectionEvent(tr, m.sess.Snapshot(now))
	for _, cb := range m.cfg.callbacks {
		invokeCallbackSafe(cb, ev, m.logger)
	}
}

// invokeCallbackSafe calls a connection callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(ConnectionEvent), ev ConnectionEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection callback panicked",
				"panic", r,
				"router", ev.RouterID,
			)
		}
	}()
	cb(ev)
}

func (m *Monitor) publish(now time.Time) {
	m.store.Update(m.snapshot(now))
}

func (m *Monitor) snapshot(now time.Time) store.Snapshot {
	routers := append([]models.Router{}, m.routers...)
	if m.sess == nil {
		return store.Snapshot{
			Status:    string(StateDisconnected),
			Rows:      []store.Row{},
			Routers:   routers,
			UpdatedAt: now,
		}
	}
	return toStoreSnapshot(m.sess.Snapshot(now), routers, now)
}

// exec runs fn on the event loop and waits for its result.
func (m *Monitor) exec(ctx context.Context, fn func(now time.Time) error) error {
	if !m.started.Load() {
		return ErrNotRunning
	}
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case m.cmds <- cmd:
	case <-m.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectRouter asks the backend to connect to routerID and, on success,
// starts a fresh session for it. The selection, vendor cache, expected names
// and liveness state of the previous router are discarded, and responses
// still in flight for it are ignored.
//
// A {success:false} reply is returned as an error wrapping
// [ErrConnectRejected] and leaves the current selection untouched. An empty
// routerID deselects the current router. When selections overlap, the one
// requested last wins and earlier calls return [ErrSelectionSuperseded].
func (m *Monitor) SelectRouter(ctx context.Context, routerID string) error {
	if !m.started.Load() {
		return ErrNotRunning
	}
	seq := m.selectSeq.Add(1)
	if routerID == "" {
		return m.exec(ctx, func(now time.Time) error {
			if m.selectSeq.Load() != seq {
				return ErrSelectionSuperseded
			}
			if m.sess != nil {
				m.logger.Info("router deselected", "router", m.sess.RouterID())
			}
			m.sess = nil
			m.publish(now)
			return nil
		})
	}

	res, err := m.backend.Connect(ctx, routerID)
	if err != nil {
		return fmt.Errorf("connect %s: %w", routerID, err)
	}
	if !res.Success {
		m.logger.Warn("connect rejected", "router", routerID, "message", res.Message)
		return fmt.Errorf("%w: %s", ErrConnectRejected, res.Message)
	}

	return m.exec(ctx, func(now time.Time) error {
		if m.selectSeq.Load() != seq {
			m.logger.Debug("discarding superseded selection", "router", routerID)
			return ErrSelectionSuperseded
		}
		m.selectRouter(routerID, now)
		m.publish(now)
		return nil
	})
}

// Process submits the expected-name list and filters, recomputes the view
// from the last live snapshot and triggers a data poll.
func (m *Monitor) Process(ctx context.Context, names []string, filters Filters) error {
	return m.exec(ctx, func(now time.Time) error {
		if m.sess == nil {
			return ErrNoRouter
		}
		m.dispatch(m.sess.Process(names, filters))
		m.publish(now)
		return nil
	})
}

// LoadSecrets fetches the router's PPP secret names and uses them as the
// expected-name list.
func (m *Monitor) LoadSecrets(ctx context.Context) error {
	return m.exec(ctx, func(now time.Time) error {
		if m.sess == nil {
			return ErrNoRouter
		}
		m.dispatch(m.sess.SecretsRequest())
		m.publish(now)
		return nil
	})
}

// Toggle sets the checked flag for a device name.
func (m *Monitor) Toggle(ctx context.Context, name string, checked bool) error {
	return m.exec(ctx, func(now time.Time) error {
		if m.sess == nil {
			return ErrNoRouter
		}
		m.sess.Toggle(name, checked)
		m.publish(now)
		return nil
	})
}

// Suggest returns vendor suggestions matching query. A non-positive limit
// uses the configured default.
func (m *Monitor) Suggest(ctx context.Context, query string, limit int) ([]string, error) {
	var out []string
	err := m.exec(ctx, func(time.Time) error {
		if m.sess == nil {
			return ErrNoRouter
		}
		out = m.sess.Suggest(query, limit)
		return nil
	})
	return out, err
}

// Rows returns the current display rows.
func (m *Monitor) Rows(ctx context.Context) ([]Row, error) {
	var rows []Row
	err := m.exec(ctx, func(time.Time) error {
		if m.sess == nil {
			return ErrNoRouter
		}
		rows = append([]Row(nil), m.sess.Result().Rows...)
		return nil
	})
	return rows, err
}

// View returns a copy of the current monitor state.
func (m *Monitor) View(ctx context.Context) (View, error) {
	var v View
	err := m.exec(ctx, func(now time.Time) error {
		if m.sess == nil {
			v = View{State: StateDisconnected}
			return nil
		}
		v = toView(m.sess.Snapshot(now))
		return nil
	})
	return v, err
}

// Export writes the current rows as CSV.
func (m *Monitor) Export(ctx context.Context, w io.Writer, opts ExportOptions) error {
	rows, err := m.Rows(ctx)
	if err != nil {
		return err
	}
	return WriteCSV(w, rows, opts)
}

// Routers fetches the router list from the backend and refreshes the cached
// copy served to the dashboard.
func (m *Monitor) Routers(ctx context.Context) ([]Router, error) {
	routers, err := m.backend.Routers(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.exec(ctx, func(now time.Time) error {
		m.routers = routers
		m.publish(now)
		return nil
	}); err != nil {
		return nil, err
	}
	return routers, nil
}

// Logs fetches the backend's recent log lines.
func (m *Monitor) Logs(ctx context.Context) ([]LogEntry, error) {
	return m.backend.Logs(ctx)
}
