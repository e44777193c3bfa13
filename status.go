package pppmon

import (
	"io"
	"time"

	"github.com/pppmon/pppmon/internal/export"
	"github.com/pppmon/pppmon/internal/liveness"
	"github.com/pppmon/pppmon/internal/models"
	"github.com/pppmon/pppmon/internal/reconcile"
	"github.com/pppmon/pppmon/internal/session"
)

// Wire types shared with the backend.
type (
	Router        = models.Router
	DeviceRecord  = models.DeviceRecord
	StatusReport  = models.StatusReport
	ConnectResult = models.ConnectResult
	LogEntry      = models.LogEntry
)

// Reconciliation types.
type (
	// Filters are the vendor and free-text search conditions.
	Filters = reconcile.Filters

	// Row is one display row of the reconciled view.
	Row = reconcile.Row

	// ExportOptions narrows a CSV export.
	ExportOptions = export.Options
)

var (
	// ErrNoRouter is returned by operations that need a selected router.
	ErrNoRouter = session.ErrNoRouter

	// ErrConnectRejected wraps a {success:false} connect response.
	ErrConnectRejected = session.ErrConnectRejected

	// ErrNoRows is returned by an export that selects no rows.
	ErrNoRows = export.ErrNoRows
)

// ConnectionState is the liveness of the backend's router connection.
//
// ConnectionState is a string type that holds [StateConnected] or
// [StateDisconnected]. Before the first status poll resolves the state reads
// as disconnected.
type ConnectionState string

const (
	// StateConnected means a status poll confirmed the connection within the
	// status timeout.
	StateConnected ConnectionState = "connected"

	// StateDisconnected means the last poll was negative or failed, or no
	// confirmation arrived within the status timeout.
	StateDisconnected ConnectionState = "disconnected"
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	return string(s)
}

// ConnectionEvent describes a liveness transition.
type ConnectionEvent struct {
	// RouterID is the router whose connection changed.
	RouterID string

	// SessionID identifies the router selection the event belongs to.
	SessionID string

	From ConnectionState
	To   ConnectionState

	// Reason is "poll" for an explicit status response, "error" for a
	// failed status request and "watchdog" when the connection went
	// unconfirmed for longer than the status timeout.
	Reason string

	// RouterIP is the router address last reported by the backend.
	RouterIP string

	// Error is the last error reported by the backend or the transport.
	Error string

	At time.Time
}

// View is a point-in-time copy of the monitor state.
type View struct {
	RouterID  string
	SessionID string

	State           ConnectionState
	StatusKnown     bool
	RouterIP        string
	LastError       string
	LastConfirmedAt time.Time

	// WebTick and DBTick are the heartbeats left before the next data poll
	// and the next db countdown wrap.
	WebTick int
	DBTick  int

	Processed bool
	Expected  []string
	Filters   Filters
	Rows      []Row

	// ShownOnline counts online rows that survived filtering; TotalOnline is
	// the number of live records the backend reported.
	ShownOnline int
	TotalOnline int

	Checked     []string
	VendorCount int
	LastDataAt  time.Time
	DataError   string
}

func toView(v session.View) View {
	return View{
		RouterID:        v.RouterID,
		SessionID:       v.SessionID,
		State:           ConnectionState(v.State),
		StatusKnown:     v.Known,
		RouterIP:        v.RouterIP,
		LastError:       v.LastError,
		LastConfirmedAt: v.LastConfirmedAt,
		WebTick:         v.WebTick,
		DBTick:          v.DBTick,
		Processed:       v.Processed,
		Expected:        v.Expected,
		Filters:         v.Filters,
		Rows:            v.Result.Rows,
		ShownOnline:     v.Result.ShownOnline,
		TotalOnline:     v.Result.TotalOnline,
		Checked:         v.Checked,
		VendorCount:     v.VendorCount,
		LastDataAt:      v.LastDataAt,
		DataError:       v.DataError,
	}
}

func toConnectionEvent(tr liveness.Transition, v session.View) ConnectionEvent {
	return ConnectionEvent{
		RouterID:  v.RouterID,
		SessionID: v.SessionID,
		From:      ConnectionState(tr.From),
		To:        ConnectionState(tr.To),
		Reason:    string(tr.Reason),
		RouterIP:  v.RouterIP,
		Error:     v.LastError,
		At:        tr.At,
	}
}

// ParseNames splits free-form text into expected names, one per line.
// Surrounding whitespace is trimmed and blank lines are dropped; order and
// duplicates are kept.
func ParseNames(text string) []string {
	return reconcile.ParseNames(text)
}

// WriteCSV writes rows as CSV. See [ExportOptions] for the row selection.
func WriteCSV(w io.Writer, rows []Row, opts ExportOptions) error {
	return export.WriteCSV(w, rows, opts)
}
