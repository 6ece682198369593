package event

import (
	"time"

	"github.com/ashosive/agent-runtime/internal/session"
)

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info session.View `json:"info"`
}

// SessionTransitionData is the data for session.started, session.paused,
// session.suspended and session.ended events.
type SessionTransitionData struct {
	SessionID string        `json:"sessionID"`
	PrevState session.State `json:"prevState"`
	NewState  session.State `json:"newState"`
	UpdatedAt time.Time     `json:"updatedAt"`
	// Reason is set when the transition was not requested by a caller,
	// e.g. "inactivity" for sessions ended by the reaper.
	Reason string `json:"reason,omitempty"`
}

// SessionRemovedData is the data for session.removed events.
type SessionRemovedData struct {
	SessionID string `json:"sessionID"`
}

// SessionModelSetData is the data for session.model events.
type SessionModelSetData struct {
	SessionID string `json:"sessionID"`
	Model     string `json:"model"`
}

// SessionInputData is the data for session.input events.
type SessionInputData struct {
	SessionID string `json:"sessionID"`
	Text      string `json:"text"`
}

// SessionTokenData is the data for session.token events.
type SessionTokenData struct {
	SessionID string `json:"sessionID"`
	Token     string `json:"token"`
	// Synthetic marks tokens produced by the fallback generator.
	Synthetic bool `json:"synthetic,omitempty"`
}

// SessionIdleData is the data for session.idle events, published when a
// session's token stream has been drained.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
	Tokens    uint64 `json:"tokens"`
	Error     string `json:"error,omitempty"`
}
