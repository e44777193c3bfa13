// Package liveness tracks whether the backend's router connection is alive.
//
// The tracker is a two-state machine driven by explicit status polls and a
// staleness watchdog. A positive poll confirms the connection; a negative
// poll or a failed request marks it down. Independently of polls, a
// connection that has not been confirmed for longer than the timeout reads
// as disconnected, which covers network paths that hang silently.
package liveness

import "time"

// DefaultTimeout is the staleness window after which an unconfirmed
// connection is treated as down.
const DefaultTimeout = 120 * time.Second

// State is the externally visible connection state.
type State string

const (
	// StateConnected means a status poll confirmed the connection within
	// the timeout window.
	StateConnected State = "connected"

	// StateDisconnected means the last poll was negative, failed, or the
	// watchdog expired. It is also reported before the first poll resolves.
	StateDisconnected State = "disconnected"
)

// Reason describes what caused the last transition.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonPoll     Reason = "poll"
	ReasonError    Reason = "error"
	ReasonWatchdog Reason = "watchdog"
)

// Transition is returned when a call changes the visible state.
type Transition struct {
	From   State
	To     State
	Reason Reason
	At     time.Time
}

// Tracker is the liveness state machine for one router selection.
//
// Tracker is not safe for concurrent use.
type Tracker struct {
	timeout         time.Duration
	state           State
	known           bool
	lastConfirmedAt time.Time
	lastError       string
	routerIP        string
	reason          Reason
}

// NewTracker returns a tracker in the unknown state. A non-positive timeout
// falls back to [DefaultTimeout].
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		timeout: timeout,
		state:   StateDisconnected,
	}
}

// Confirm records a positive status poll at now.
func (t *Tracker) Confirm(now time.Time, routerIP string) (Transition, bool) {
	t.known = true
	t.lastConfirmedAt = now
	t.lastError = ""
	if routerIP != "" {
		t.routerIP = routerIP
	}
	return t.set(StateConnected, ReasonPoll, now)
}

// Reject records a negative status poll. errMsg is kept when non-empty.
func (t *Tracker) Reject(now time.Time, routerIP, errMsg string) (Transition, bool) {
	t.known = true
	if routerIP != "" {
		t.routerIP = routerIP
	}
	if errMsg != "" {
		t.lastError = errMsg
	}
	return t.set(StateDisconnected, ReasonPoll, now)
}

// Fail records a status poll that did not complete.
func (t *Tracker) Fail(now time.Time, err error) (Transition, bool) {
	t.known = true
	if err != nil {
		t.lastError = err.Error()
	}
	return t.set(StateDisconnected, ReasonError, now)
}

// Check runs the watchdog at now and forces a disconnect if the last
// confirmation is older than the timeout.
func (t *Tracker) Check(now time.Time) (Transition, bool) {
	if t.state == StateConnected && t.expired(now) {
		return t.set(StateDisconnected, ReasonWatchdog, now)
	}
	return Transition{}, false
}

// StateAt returns the visible state at now, applying the watchdog rule even
// if [Tracker.Check] has not run since the last confirmation.
func (t *Tracker) StateAt(now time.Time) State {
	if t.state == StateConnected && t.expired(now) {
		return StateDisconnected
	}
	return t.state
}

// Known reports whether any status poll has resolved yet.
func (t *Tracker) Known() bool { return t.known }

// LastConfirmedAt returns the time of the last positive poll, or the zero
// time if there was none.
func (t *Tracker) LastConfirmedAt() time.Time { return t.lastConfirmedAt }

// LastError returns the most recent error message.
func (t *Tracker) LastError() string { return t.lastError }

// RouterIP returns the router address reported by the backend.
func (t *Tracker) RouterIP() string { return t.routerIP }

// Reason returns the cause of the last transition.
func (t *Tracker) Reason() Reason { return t.reason }

// Timeout returns the configured staleness window.
func (t *Tracker) Timeout() time.Duration { return t.timeout }

func (t *Tracker) expired(now time.Time) bool {
	return now.Sub(t.lastConfirmedAt) > t.timeout
}

func (t *Tracker) set(to State, reason Reason, now time.Time) (Transition, bool) {
	from := t.state
	t.state = to
	if from == to {
		return Transition{}, false
	}
	t.reason = reason
	return Transition{From: from, To: to, Reason: reason, At: now}, true
}
