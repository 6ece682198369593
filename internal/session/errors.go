package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no session is registered under an id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidState matches every *InvalidStateError.
	ErrInvalidState = errors.New("invalid session state")
	// ErrPoisoned is returned once a writer has panicked while holding a session.
	ErrPoisoned = errors.New("session lock poisoned")
	// ErrDuplicateID is returned when an id is inserted twice or reinserted after removal.
	ErrDuplicateID = errors.New("session id already registered")
)

// InvalidStateError reports an operation that is illegal in the session's current state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("invalid state: %s", e.State)
	}
	return fmt.Sprintf("invalid state for %s: %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) match.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
