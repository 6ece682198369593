package session

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Creation defaults.
const (
	DefaultMaxTokens       uint32 = 2048
	DefaultMaxDurationMS   uint64 = 60_000
	DefaultMaxContextBytes uint32 = 256 * 1024
	DefaultSystemPrompt           = "You are an AI assistant."
)

// CreateRequest carries the optional parameters of a new session.
type CreateRequest struct {
	SystemPrompt       *string `json:"system_prompt,omitempty"`
	UserPromptSnapshot *string `json:"user_prompt_snapshot,omitempty"`
	MaxTokens          *uint32 `json:"max_tokens,omitempty"`
	MaxDurationMS      *uint64 `json:"max_duration_ms,omitempty"`
	MaxContextBytes    *uint32 `json:"max_context_bytes,omitempty"`
}

// Receipt acknowledges a created session.
type Receipt struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a Pending session from req. It has no side effects; publishing
// the session into a Registry is the caller's job.
func New(req CreateRequest) (*Session, Receipt) {
	return newAt(req, generateID(), time.Now())
}

func newAt(req CreateRequest, id string, now time.Time) (*Session, Receipt) {
	limits := Limits{
		MaxTokens:       DefaultMaxTokens,
		MaxDurationMS:   DefaultMaxDurationMS,
		MaxContextBytes: DefaultMaxContextBytes,
	}
	if req.MaxTokens != nil {
		limits.MaxTokens = *req.MaxTokens
	}
	if req.MaxDurationMS != nil {
		limits.MaxDurationMS = *req.MaxDurationMS
	}
	if req.MaxContextBytes != nil {
		limits.MaxContextBytes = *req.MaxContextBytes
	}

	systemPrompt := DefaultSystemPrompt
	if req.SystemPrompt != nil {
		systemPrompt = *req.SystemPrompt
	}

	s := &Session{
		id:        id,
		state:     StatePending,
		limits:    limits,
		createdAt: now,
		updatedAt: now,
		seed: ContextSeed{
			SystemPrompt:       systemPrompt,
			UserPromptSnapshot: copyString(req.UserPromptSnapshot),
		},
	}

	return s, Receipt{SessionID: id, CreatedAt: now}
}

// generateID generates a new ULID.
func generateID() string {
	return ulid.Make().String()
}
