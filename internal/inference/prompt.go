package inference

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashosive/agent-runtime/internal/session"
)

// userTurnSeparator joins the system prompt and the latest user turn.
const userTurnSeparator = "\n\nUser: "

// FormatPrompt renders a context seed as backend prompt text.
func FormatPrompt(seed session.ContextSeed) string {
	if seed.UserPromptSnapshot == nil {
		return seed.SystemPrompt
	}
	var b strings.Builder
	b.Grow(len(seed.SystemPrompt) + len(userTurnSeparator) + len(*seed.UserPromptSnapshot))
	b.WriteString(seed.SystemPrompt)
	b.WriteString(userTurnSeparator)
	b.WriteString(*seed.UserPromptSnapshot)
	return b.String()
}

// BuildPrompt assembles the prompt of an Active session under a read lock.
func BuildPrompt(reg *session.Registry, id string) (string, error) {
	h, ok := reg.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	var prompt string
	err := h.Read(func(s *session.Session) error {
		if s.State() != session.StateActive {
			return &session.InvalidStateError{Op: "build prompt", State: s.State()}
		}
		prompt = FormatPrompt(s.ContextSeed())
		return nil
	})
	return prompt, err
}

// ApplyUserInput records text as the session's latest user turn and returns
// the rebuilt prompt. Only Active sessions accept input; for any other state
// the snapshot is left unchanged and an *session.InvalidStateError is returned.
func ApplyUserInput(reg *session.Registry, id, text string) (string, error) {
	return applyUserInput(reg, id, text, time.Now())
}

func applyUserInput(reg *session.Registry, id, text string, now time.Time) (string, error) {
	h, ok := reg.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	var prompt string
	err := h.Update(func(s *session.Session) error {
		if err := s.SetUserPrompt(text, now); err != nil {
			return err
		}
		prompt = FormatPrompt(s.ContextSeed())
		return nil
	})
	if err != nil {
		return "", err
	}
	return prompt, nil
}

// approxTokens estimates the token count of text by counting words.
func approxTokens(text string) uint64 {
	return uint64(len(strings.Fields(text)))
}
