package store

import (
	"time"

	"github.com/pppmon/pppmon/internal/models"
)

// Row is one display row of the dashboard table.
type Row struct {
	Name    string `json:"name"`
	Online  bool   `json:"online"`
	IP      string `json:"ip,omitempty"`
	MAC     string `json:"mac,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
	Checked bool   `json:"checked"`
}

// Snapshot is the full dashboard view at one point in time.
//
// Snapshot is the storage representation of the monitor state, optimized
// for JSON serialization (used by the REST API and SSE). It is decoupled
// from the session's internal types to allow independent evolution.
type Snapshot struct {
	// Version increases by one on every update.
	Version uint64 `json:"version"`

	// RouterID is the selected router, empty when none is selected.
	RouterID  string `json:"router_id"`
	SessionID string `json:"session_id,omitempty"`

	// Status is "connected" or "disconnected".
	Status          string     `json:"status"`
	StatusKnown     bool       `json:"status_known"`
	RouterIP        string     `json:"router_ip,omitempty"`
	LastError       *string    `json:"last_error"`
	LastConfirmedAt *time.Time `json:"last_confirmed_at"`

	WebTick int `json:"web_tick"`
	DBTick  int `json:"db_tick"`

	Processed   bool   `json:"processed"`
	Vendor      string `json:"vendor"`
	Search      string `json:"search"`
	Expected    int    `json:"expected"`
	Rows        []Row  `json:"rows"`
	ShownOnline int    `json:"shown_online"`
	TotalOnline int    `json:"total_online"`
	Checked     int    `json:"checked"`
	VendorCount int    `json:"vendor_count"`

	LastDataAt *time.Time `json:"last_data_at"`
	DataError  *string    `json:"data_error"`

	Routers []models.Router `json:"routers"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to snapshots.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update replaces the latest snapshot, assigns its version and notifies
	// all subscribers.
	Update(snap Snapshot) Snapshot

	// Latest returns the most recent snapshot. ok is false before the first
	// update.
	Latest() (snap Snapshot, ok bool)

	// Subscribe returns a channel that receives snapshots. A slow consumer
	// skips to the newest snapshot instead of blocking Update.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
