package session

import "time"

// StartReceipt describes the outcome of a Start transition. Callers spawn a
// new inference pipeline only when WasNoop is false.
type StartReceipt struct {
	SessionID string     `json:"session_id"`
	PrevState State      `json:"prev_state"`
	NewState  State      `json:"new_state"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	WasNoop   bool       `json:"was_noop"`
}

// TransitionReceipt describes the outcome of Pause, Suspend and End.
type TransitionReceipt struct {
	SessionID string    `json:"session_id"`
	PrevState State     `json:"prev_state"`
	NewState  State     `json:"new_state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Start moves a session into Active. The caller must hold the session exclusively.
//
//	Pending, Paused, Suspended -> Active (WasNoop=false, StartedAt set once)
//	Active                     -> Active (WasNoop=true, heartbeat only)
//	Ended                      -> error, session untouched
func Start(s *Session, now time.Time) (StartReceipt, error) {
	prev := s.state

	switch prev {
	case StatePending, StatePaused, StateSuspended:
		s.state = StateActive
		at := s.Touch(now)
		if s.startedAt == nil {
			s.startedAt = &at
		}
		return startReceipt(s, prev, false), nil
	case StateActive:
		s.Touch(now)
		return startReceipt(s, prev, true), nil
	default:
		return StartReceipt{}, &InvalidStateError{Op: "start", State: prev}
	}
}

func startReceipt(s *Session, prev State, noop bool) StartReceipt {
	return StartReceipt{
		SessionID: s.id,
		PrevState: prev,
		NewState:  s.state,
		UpdatedAt: s.updatedAt,
		StartedAt: copyTime(s.startedAt),
		WasNoop:   noop,
	}
}

// Pause moves an Active session to Paused.
func Pause(s *Session, now time.Time) (TransitionReceipt, error) {
	if s.state != StateActive {
		return TransitionReceipt{}, &InvalidStateError{Op: "pause", State: s.state}
	}
	return move(s, StatePaused, now), nil
}

// Suspend moves an Active or Paused session to Suspended.
func Suspend(s *Session, now time.Time) (TransitionReceipt, error) {
	if s.state != StateActive && s.state != StatePaused {
		return TransitionReceipt{}, &InvalidStateError{Op: "suspend", State: s.state}
	}
	return move(s, StateSuspended, now), nil
}

// End retires a session. Ended is terminal.
func End(s *Session, now time.Time) (TransitionReceipt, error) {
	if s.state == StateEnded {
		return TransitionReceipt{}, &InvalidStateError{Op: "end", State: s.state}
	}
	return move(s, StateEnded, now), nil
}

func move(s *Session, to State, now time.Time) TransitionReceipt {
	prev := s.state
	s.state = to
	s.Touch(now)
	return TransitionReceipt{
		SessionID: s.id,
		PrevState: prev,
		NewState:  to,
		UpdatedAt: s.updatedAt,
	}
}
