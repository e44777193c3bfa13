// Package store holds the latest monitor snapshot and fans updates out to
// subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining snapshot storage and subscription
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: Storage representation of the dashboard view
//
// The store is safe for concurrent access. A subscriber that falls behind
// skips intermediate snapshots and receives the newest one, so the monitor's
// event loop never waits on a browser.
//
// Users of the pppmon library should not need to interact with this package
// directly. Snapshots are published by the monitor.
package store
