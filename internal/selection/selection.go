// Package selection stores the user's per-device checkbox annotations.
//
// Entries are keyed by device name, never by poll, so a checked name stays
// checked across any number of data polls, including polls in which the
// device is temporarily absent. The store is reset only when the active
// router changes.
package selection

import "sort"

// Store maps device names to their checked flag.
//
// Store is not safe for concurrent use; it is owned by a single session and
// accessed from the monitor's event loop.
type Store struct {
	checked map[string]bool
}

// New returns an empty [Store].
func New() *Store {
	return &Store{checked: make(map[string]bool)}
}

// Toggle sets the checked flag for name.
func (s *Store) Toggle(name string, checked bool) {
	if checked {
		s.checked[name] = true
		return
	}
	delete(s.checked, name)
}

// Checked reports whether name is checked. Unseen names are unchecked.
func (s *Store) Checked(name string) bool {
	return s.checked[name]
}

// Reset clears every annotation.
func (s *Store) Reset() {
	s.checked = make(map[string]bool)
}

// Names returns the checked names in lexical order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.checked))
	for name := range s.checked {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of checked names.
func (s *Store) Len() int {
	return len(s.checked)
}
