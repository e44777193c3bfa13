// Package models holds the wire types exchanged with the router backend.
//
// These types mirror the JSON documents returned by the backend HTTP API and
// are shared by the poller, session, and server packages.
package models

// Router is one entry of the GET /routers listing.
type Router struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// DeviceRecord is one currently-online PPP session as reported by the
// backend for the active router. Name is the join key against the expected
// name list.
type DeviceRecord struct {
	Name   string `json:"name"`
	IP     string `json:"ip"`
	MAC    string `json:"mac"`
	Vendor string `json:"vendor"`
	Uptime string `json:"uptime"`
}

// ConnectResult is the body of POST /connect/{routerId}.
type ConnectResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusReport is the body of GET /status/{routerId}.
type StatusReport struct {
	Connected bool   `json:"connected"`
	RouterIP  string `json:"router_ip"`
	LastError string `json:"last_error,omitempty"`
}

// LogEntry is one line of the backend's GET /logs listing.
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}
