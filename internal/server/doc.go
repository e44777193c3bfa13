// Package server provides the HTTP server for the pppmon dashboard and API.
//
// This package is internal to pppmon and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - Read API: "/api/view", "/api/routers", "/api/vendors", "/api/logs"
//     and the CSV download at "/api/export.csv"
//   - Actions: "/api/select", "/api/process", "/api/secrets", "/api/check"
//   - Server-Sent Events: snapshot stream at "/api/sse"
//
// Actions are forwarded to a [Controller]; the view is read from the
// snapshot store. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
//
// Users of the pppmon library should not need to interact with this
// package directly. The server is started by [pppmon.Monitor.Start].
package server
