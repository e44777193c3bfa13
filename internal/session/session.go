// Package session holds the monitoring state for one router selection.
//
// A [Session] composes the refresh countdown, the liveness tracker, the
// selection store, the vendor cache and the last reconciliation result. It
// is created when a router is selected and discarded when the selection
// changes, which resets every dependent store at once.
//
// The session never performs I/O. It hands out [Request] values describing
// the fetch to perform and accepts the responses back through the Apply and
// Fail methods. Each request carries the session id and a sequence number;
// responses for another session, or older than the newest response already
// applied for the same feed, are rejected with [ErrStale].
//
// A Session is not safe for concurrent use. The monitor's event loop owns it.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pppmon/pppmon/internal/liveness"
	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/poller"
	"github.com/pppmon/pppmon/internal/reconcile"
	"github.com/pppmon/pppmon/internal/selection"
	"github.com/pppmon/pppmon/internal/vendor"
)

var (
	// ErrStale is returned when a response belongs to another session or
	// was superseded by a newer response on the same feed.
	ErrStale = errors.New("stale response")

	// ErrNoRouter is returned by operations that need a selected router.
	ErrNoRouter = errors.New("no router selected")

	// ErrConnectRejected is returned when the backend refuses to start
	// collecting from a router.
	ErrConnectRejected = errors.New("connect rejected")
)

// Feed identifies a backend endpoint polled by the session.
type Feed string

const (
	FeedData    Feed = "data"
	FeedStatus  Feed = "status"
	FeedSecrets Feed = "secrets"
	FeedVendors Feed = "vendors"
)

// Request describes one fetch the caller should perform for the session.
type Request struct {
	Feed      Feed
	SessionID string
	RouterID  string
	Seq       uint64
}

// Config tunes a session. Zero values fall back to the package defaults of
// the component they configure.
type Config struct {
	WebRefresh    int
	DBRefresh     int
	StatusTimeout time.Duration
	SuggestLimit  int
}

// Session is the state of one router selection.
type Session struct {
	id        string
	routerID  string
	createdAt time.Time
	cfg       Config

	countdown *poller.Countdown
	tracker   *liveness.Tracker
	selection *selection.Store
	vendors   *vendor.Cache

	expected     []string
	filters      reconcile.Filters
	hasProcessed bool

	live       []models.DeviceRecord
	result     reconcile.Result
	lastDataAt time.Time
	dataError  string

	seq     uint64
	applied map[Feed]uint64
}

// New creates a session for routerID.
func New(routerID string, cfg Config, now time.Time) *Session {
	return &Session{
		id:        uuid.NewString(),
		routerID:  routerID,
		createdAt: now,
		cfg:       cfg,
		countdown: poller.NewCountdown(cfg.WebRefresh, cfg.DBRefresh),
		tracker:   liveness.NewTracker(cfg.StatusTimeout),
		selection: selection.New(),
		vendors:   vendor.NewCache(),
		applied:   make(map[Feed]uint64),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// RouterID returns the router this session targets.
func (s *Session) RouterID() string { return s.routerID }

// Processed reports whether an expected-name list has been submitted.
func (s *Session) Processed() bool { return s.hasProcessed }

// TickResult is what a heartbeat produced.
type TickResult struct {
	// Requests are the fetches that became due.
	Requests []Request

	// Transition is set when the watchdog changed the liveness state.
	Transition *liveness.Transition
}

// Tick advances the countdown by one heartbeat and runs the watchdog.
// A data request is only issued once names have been processed.
func (s *Session) Tick(now time.Time) TickResult {
	var res TickResult

	due := s.countdown.Tick()
	if due.PollDue && s.hasProcessed {
		res.Requests = append(res.Requests, s.request(FeedData))
	}

	if tr, changed := s.tracker.Check(now); changed {
		res.Transition = &tr
	}
	return res
}

// StatusRequest returns a liveness poll request.
func (s *Session) StatusRequest() Request {
	return s.request(FeedStatus)
}

// SecretsRequest returns a request for the router's secret names. It counts
// as a manual poll and restarts the web countdown.
func (s *Session) SecretsRequest() Request {
	s.countdown.ResetWeb()
	return s.request(FeedSecrets)
}

// VendorsRequest returns a request for the backend's bulk vendor list.
func (s *Session) VendorsRequest() Request {
	return s.request(FeedVendors)
}

// Process submits a new expected-name list and filter pair. The current
// view is recomputed immediately from the last live snapshot, the web
// countdown restarts, and a data request is returned.
func (s *Session) Process(names []string, filters reconcile.Filters) Request {
	s.expected = reconcile.CleanNames(names)
	s.filters = filters
	s.hasProcessed = true
	s.countdown.ResetWeb()
	s.reconcile()
	return s.request(FeedData)
}

// Toggle sets the checked flag for name and refreshes the view.
func (s *Session) Toggle(name string, checked bool) {
	s.selection.Toggle(name, checked)
	s.reconcile()
}

// Suggest returns vendor suggestions for query. A non-positive limit uses
// the session's configured limit.
func (s *Session) Suggest(query string, limit int) []string {
	if limit <= 0 {
		limit = s.cfg.SuggestLimit
	}
	return s.vendors.Suggest(query, limit)
}

// ApplyData installs a live snapshot. Every vendor in the raw snapshot is
// added to the suggestion cache before filtering.
func (s *Session) ApplyData(req Request, records []models.DeviceRecord, now time.Time) error {
	if err := s.accept(req, FeedData); err != nil {
		return err
	}
	for _, rec := range records {
		s.vendors.Add(rec.Vendor)
	}
	s.live = records
	s.lastDataAt = now
	s.dataError = ""
	s.reconcile()
	return nil
}

// FailData records a failed data poll. The previous view is kept.
func (s *Session) FailData(req Request, fetchErr error) error {
	if err := s.check(req, FeedData); err != nil {
		return err
	}
	if fetchErr != nil {
		s.dataError = fetchErr.Error()
	}
	return nil
}

// ApplyStatus feeds a status report to the liveness tracker. A positive
// report also restarts the db countdown.
func (s *Session) ApplyStatus(req Request, report models.StatusReport, now time.Time) (*liveness.Transition, error) {
	if err := s.accept(req, FeedStatus); err != nil {
		return nil, err
	}

	var (
		tr      liveness.Transition
		changed bool
	)
	if report.Connected {
		tr, changed = s.tracker.Confirm(now, report.RouterIP)
		s.countdown.ResetDB()
	} else {
		tr, changed = s.tracker.Reject(now, report.RouterIP, report.LastError)
	}
	if !changed {
		return nil, nil
	}
	return &tr, nil
}

// FailStatus marks the connection down after a status poll failed.
func (s *Session) FailStatus(req Request, fetchErr error, now time.Time) (*liveness.Transition, error) {
	if err := s.accept(req, FeedStatus); err != nil {
		return nil, err
	}
	tr, changed := s.tracker.Fail(now, fetchErr)
	if !changed {
		return nil, nil
	}
	return &tr, nil
}

// ApplySecrets replaces the expected-name list with the router's secret
// names, keeps the current filters and returns the follow-up data request.
func (s *Session) ApplySecrets(req Request, names []string) (Request, error) {
	if err := s.accept(req, FeedSecrets); err != nil {
		return Request{}, err
	}
	return s.Process(names, s.filters), nil
}

// ApplyVendors replaces the suggestion cache with the bulk vendor list.
// Vendors from the current live snapshot are kept.
func (s *Session) ApplyVendors(req Request, vendors []string) error {
	if err := s.accept(req, FeedVendors); err != nil {
		return err
	}
	s.vendors.Load(vendors)
	for _, rec := range s.live {
		s.vendors.Add(rec.Vendor)
	}
	return nil
}

// Result returns the current reconciliation result.
func (s *Session) Result() reconcile.Result { return s.result }

// View is a point-in-time copy of the session state for display.
type View struct {
	SessionID       string
	RouterID        string
	State           liveness.State
	Known           bool
	Reason          liveness.Reason
	RouterIP        string
	LastError       string
	LastConfirmedAt time.Time
	WebTick         int
	DBTick          int
	Processed       bool
	Expected        []string
	Filters         reconcile.Filters
	Result          reconcile.Result
	Checked         []string
	VendorCount     int
	LastDataAt      time.Time
	DataError       string
	CreatedAt       time.Time
}

// Snapshot returns the session state as seen at now.
func (s *Session) Snapshot(now time.Time) View {
	web, db := s.countdown.Remaining()
	rows := append([]reconcile.Row(nil), s.result.Rows...)
	return View{
		SessionID:       s.id,
		RouterID:        s.routerID,
		State:           s.tracker.StateAt(now),
		Known:           s.tracker.Known(),
		Reason:          s.tracker.Reason(),
		RouterIP:        s.tracker.RouterIP(),
		LastError:       s.tracker.LastError(),
		LastConfirmedAt: s.tracker.LastConfirmedAt(),
		WebTick:         web,
		DBTick:          db,
		Processed:       s.hasProcessed,
		Expected:        append([]string(nil), s.expected...),
		Filters:         s.filters,
		Result: reconcile.Result{
			Rows:        rows,
			ShownOnline: s.result.ShownOnline,
			TotalOnline: s.result.TotalOnline,
		},
		Checked:     s.selection.Names(),
		VendorCount: s.vendors.Len(),
		LastDataAt:  s.lastDataAt,
		DataError:   s.dataError,
		CreatedAt:   s.createdAt,
	}
}

func (s *Session) request(feed Feed) Request {
	s.seq++
	return Request{
		Feed:      feed,
		SessionID: s.id,
		RouterID:  s.routerID,
		Seq:       s.seq,
	}
}

// check rejects responses that belong to another session or are older than
// the newest applied response on the feed.
func (s *Session) check(req Request, feed Feed) error {
	if req.SessionID != s.id || req.RouterID != s.routerID || req.Feed != feed {
		return ErrStale
	}
	if req.Seq <= s.applied[feed] {
		return ErrStale
	}
	return nil
}

func (s *Session) accept(req Request, feed Feed) error {
	if err := s.check(req, feed); err != nil {
		return err
	}
	s.applied[feed] = req.Seq
	return nil
}

func (s *Session) reconcile() {
	if !s.hasProcessed {
		return
	}
	s.result = reconcile.Reconcile(s.expected, s.live, s.filters, s.selection)
}
