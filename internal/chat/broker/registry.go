package broker

import (
	"errors"
	"sync"
)

// Registry - the set of currently connected sessions keyed by identifier.
// The map is never exposed, iteration is only possible over Snapshot.
type Registry struct {
	mu       sync.RWMutex
	list     map[string]*Session
	capacity int
}

// NewRegistry - builds registry, capacity <= 0 means unlimited.
func NewRegistry(capacity int) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry{
		list:     make(map[string]*Session),
		capacity: capacity,
	}
}

// Add - registers session under its identifier.
// Closing or closed session is never (re-)added.
func (r *Registry) Add(s *Session) error {
	if s == nil {
		return errors.New("broker.Registry: session is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.State() >= StateClosing || s.stopped() {
		return ErrSessionClosed
	}
	if _, ok := r.list[s.ID()]; ok {
		return &DuplicateSessionError{ID: s.ID()}
	}
	if r.capacity > 0 && len(r.list) >= r.capacity {
		return ErrRegistryFull
	}
	r.list[s.ID()] = s
	return nil
}

// Remove - unregisters the session, no-op if it is absent.
// Another session registered under the same identifier is left in place.
func (r *Registry) Remove(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if kept, ok := r.list[s.ID()]; ok && kept == s {
		delete(r.list, s.ID())
	}
}

// Snapshot - returns members registered at the moment of the call.
// The slice is a fresh copy in no particular order, later changes of the registry do not affect it.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Session, 0, len(r.list))
	for _, s := range r.list {
		list = append(list, s)
	}
	return list
}

// Get - looks up session by identifier.
func (r *Registry) Get(id string) (s *Session, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok = r.list[id]
	return s, ok
}

// Len - returns number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}
