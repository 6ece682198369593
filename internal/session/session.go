package session

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	StatePending   State = "Pending"
	StateActive    State = "Active"
	StatePaused    State = "Paused"
	StateSuspended State = "Suspended"
	StateEnded     State = "Ended"
)

// Limits are caller-declared ceilings. They are recorded but not enforced here.
type Limits struct {
	MaxTokens       uint32 `json:"max_tokens"`
	MaxDurationMS   uint64 `json:"max_duration_ms"`
	MaxContextBytes uint32 `json:"max_context_bytes"`
}

// ContextSeed holds the prompt material a session starts from.
type ContextSeed struct {
	SystemPrompt       string  `json:"system_prompt"`
	UserPromptSnapshot *string `json:"user_prompt_snapshot,omitempty"`
}

// Accounting holds monotonically increasing usage counters.
type Accounting struct {
	PromptTokens uint64 `json:"prompt_tokens"`
	OutputTokens uint64 `json:"output_tokens"`
	Requests     uint64 `json:"requests"`
}

// Session is one conversation's state and configuration.
//
// Fields are unexported so that state, timestamps and the model only change
// through the transition functions and the mutators below. Callers reach a
// Session through a Handle, which provides the locking.
type Session struct {
	id        string
	state     State
	limits    Limits
	createdAt time.Time
	updatedAt time.Time
	startedAt *time.Time
	seed      ContextSeed
	acct      Accounting
	model     *string
}

// View is the serialisable, point-in-time form of a Session.
type View struct {
	ID          string      `json:"id"`
	State       State       `json:"state"`
	Limits      Limits      `json:"limits"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	ContextSeed ContextSeed `json:"context_seed"`
	Accounting  Accounting  `json:"accounting"`
	Model       *string     `json:"model,omitempty"`
}

func (s *Session) ID() string             { return s.id }
func (s *Session) State() State           { return s.state }
func (s *Session) Limits() Limits         { return s.limits }
func (s *Session) CreatedAt() time.Time   { return s.createdAt }
func (s *Session) UpdatedAt() time.Time   { return s.updatedAt }
func (s *Session) Accounting() Accounting { return s.acct }

// StartedAt returns when the session first became Active, or nil.
func (s *Session) StartedAt() *time.Time {
	return copyTime(s.startedAt)
}

// ContextSeed returns a copy of the session's prompt seed.
func (s *Session) ContextSeed() ContextSeed {
	return ContextSeed{
		SystemPrompt:       s.seed.SystemPrompt,
		UserPromptSnapshot: copyString(s.seed.UserPromptSnapshot),
	}
}

// Model returns the configured backend model, if any.
func (s *Session) Model() (string, bool) {
	if s.model == nil {
		return "", false
	}
	return *s.model, true
}

// Touch refreshes the liveness heartbeat. The stored value always strictly
// advances, even when the clock has not moved since the previous refresh.
func (s *Session) Touch(now time.Time) time.Time {
	if !now.After(s.updatedAt) {
		now = s.updatedAt.Add(time.Nanosecond)
	}
	s.updatedAt = now
	return now
}

// SetModel configures the backend model used for inference.
func (s *Session) SetModel(model string, now time.Time) {
	s.model = &model
	s.Touch(now)
}

// SetUserPrompt records the latest user turn. Only Active sessions accept input.
func (s *Session) SetUserPrompt(text string, now time.Time) error {
	if s.state != StateActive {
		return &InvalidStateError{Op: "input", State: s.state}
	}
	s.seed.UserPromptSnapshot = &text
	s.Touch(now)
	return nil
}

// RecordRequest counts one backend request.
func (s *Session) RecordRequest() {
	s.acct.Requests++
}

// RecordPromptTokens adds n to the prompt token counter.
func (s *Session) RecordPromptTokens(n uint64) {
	s.acct.PromptTokens += n
}

// RecordOutputTokens adds n to the output token counter.
func (s *Session) RecordOutputTokens(n uint64) {
	s.acct.OutputTokens += n
}

// View returns a deep copy of the session in serialisable form.
func (s *Session) View() View {
	return View{
		ID:          s.id,
		State:       s.state,
		Limits:      s.limits,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
		StartedAt:   copyTime(s.startedAt),
		ContextSeed: s.ContextSeed(),
		Accounting:  s.acct,
		Model:       copyString(s.model),
	}
}

// MarshalJSON encodes the session as its View.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.View())
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
