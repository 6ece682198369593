package session

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle is the shared, independently lockable reference to a registered
// session. Many readers or one writer may hold it at a time. A Handle stays
// usable after its id has been removed from the Registry.
type Handle struct {
	id       string
	mu       sync.RWMutex
	s        *Session
	poisoned atomic.Bool
}

func newHandle(s *Session) *Handle {
	return &Handle{id: s.id, s: s}
}

// ID returns the id of the session behind the handle.
func (h *Handle) ID() string { return h.id }

// Poisoned reports whether a writer panicked while holding the session.
func (h *Handle) Poisoned() bool { return h.poisoned.Load() }

// Read runs fn with the session held for shared access. fn must not retain s.
func (h *Handle) Read(fn func(s *Session) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.poisoned.Load() {
		return ErrPoisoned
	}
	return fn(h.s)
}

// Update runs fn with the session held exclusively. If fn panics the handle
// is poisoned: this call and every later Read or Update return ErrPoisoned.
func (h *Handle) Update(fn func(s *Session) error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.poisoned.Load() {
		return ErrPoisoned
	}

	defer func() {
		if r := recover(); r != nil {
			h.poisoned.Store(true)
			err = fmt.Errorf("%w: writer panicked: %v", ErrPoisoned, r)
		}
	}()

	return fn(h.s)
}

// View returns a point-in-time copy of the session.
func (h *Handle) View() (View, error) {
	var v View
	err := h.Read(func(s *Session) error {
		v = s.View()
		return nil
	})
	return v, err
}
