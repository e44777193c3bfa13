package store

import (
	"sync"
)

// MemoryStore is an in-memory [Store].
//
// Each subscriber owns a one-slot mailbox. A newer snapshot replaces an
// unread older one, so a slow reader always wakes up to the current view
// and never blocks the publisher.
type MemoryStore struct {
	mu      sync.Mutex
	latest  Snapshot
	version uint64
	boxes   map[<-chan Snapshot]chan Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boxes: make(map[<-chan Snapshot]chan Snapshot)}
}

// Update stamps snap with the next version, keeps it as the latest and
// posts it to every mailbox. The stamped copy is returned.
func (m *MemoryStore) Update(snap Snapshot) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	snap.Version = m.version
	m.latest = snap

	for _, box := range m.boxes {
		// drop the unread snapshot, if any; only Update sends, so the
		// send below cannot block
		select {
		case <-box:
		default:
		}
		box <- snap
	}
	return snap
}

// Latest returns the most recent snapshot. ok is false until the first
// Update.
func (m *MemoryStore) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.version > 0
}

// Subscribe opens a mailbox. The caller must [MemoryStore.Unsubscribe] it.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	box := make(chan Snapshot, 1)
	m.mu.Lock()
	m.boxes[box] = box
	m.mu.Unlock()
	return box
}

// Unsubscribe closes the mailbox. Unknown or already closed mailboxes are
// ignored.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if box, ok := m.boxes[ch]; ok {
		delete(m.boxes, ch)
		close(box)
	}
}

// SubscriberCount returns the number of open mailboxes.
func (m *MemoryStore) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes)
}
