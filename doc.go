// Package pppmon monitors the PPP sessions of a router through its
// collector backend and reconciles them against a list of expected names.
//
// A [Monitor] polls the backend on independent cadences: a one-second
// heartbeat drives the data refresh countdown and the connection watchdog,
// a status timer polls liveness, and a slower timer refreshes the router
// list. Each data poll is merged with the expected-name list and two
// free-text filters into an ordered, checkbox-annotated view that is served
// to a browser dashboard over JSON and Server-Sent Events.
//
// # Quick Start
//
//	m, err := pppmon.New(
//	    pppmon.WithBackendURL("http://127.0.0.1:5000"),
//	    pppmon.WithInitialRouter("core-1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Reconciliation
//
// The expected-name list is authoritative for display order. Expected names
// with a live session become online rows carrying the session's address,
// MAC, vendor and uptime; the rest become offline rows. The vendor filter
// matches the live vendor and suppresses offline rows while set; the search
// filter matches the expected name. Checked flags are keyed by name and
// survive polls until the router selection changes.
//
// # Ordering
//
// Every request carries the id of the router selection it was issued for
// and a sequence number. Responses for an earlier selection, or older than
// a response already applied on the same feed, are discarded.
//
// # Architecture
//
//   - internal/poller: backend client, refresh countdown, fetch worker pool
//   - internal/liveness: connection state machine with watchdog
//   - internal/reconcile: expected-vs-live merge
//   - internal/selection, internal/vendor: checkbox and vendor stores
//   - internal/session: per-router composition of the above
//   - internal/store, internal/server: snapshot pub/sub and HTTP API
//   - internal/export: CSV projection
//   - dashboard: embedded web UI assets
package pppmon
