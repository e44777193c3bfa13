// Package poller provides the timing and transport pieces of the monitor.
//
// The main components are:
//
//   - [Countdown]: the two heartbeat-driven refresh counters
//   - [Client]: pooled HTTP client with per-request timeouts and size limits
//   - [Backend]: typed client for the router backend API
//   - [Dispatcher]: bounded worker pool that runs fetches off the event loop
//
// Users of the pppmon library should not need to interact with this
// package directly. Configuration is done through the main pppmon package.
package poller
