package config

import "sync/atomic"

// Store publishes the current Snapshot. It is safe for concurrent use.
type Store struct {
	p atomic.Pointer[Snapshot]
}

// NewStore returns a Store holding s.
func NewStore(s *Snapshot) *Store {
	st := &Store{}
	st.p.Store(s)
	return st
}

// Load returns the current snapshot. The result must be treated as read-only
// and may be held for the lifetime of a session.
func (s *Store) Load() *Snapshot {
	return s.p.Load()
}

// Swap replaces the current snapshot and returns the previous one.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.p.Swap(next)
}
