package testutil

import (
	"context"
	"fmt"
	"os"
)

// ---- Test Session Manager ----

// SessionManager manages test sessions for cleanup
type SessionManager struct {
	client   *TestClient
	sessions []string
}

// NewSessionManager creates a session manager
func NewSessionManager(client *TestClient) *SessionManager {
	return &SessionManager{
		client:   client,
		sessions: make([]string, 0),
	}
}

// Create creates a session and tracks it for cleanup
func (m *SessionManager) Create(body map[string]any) (*Created, error) {
	created, err := m.client.CreateSession(context.Background(), body)
	if err != nil {
		return nil, err
	}
	m.sessions = append(m.sessions, created.SessionID)
	return created, nil
}

// Cleanup deletes all tracked sessions
func (m *SessionManager) Cleanup() {
	for _, id := range m.sessions {
		m.client.DeleteSession(context.Background(), id)
	}
	m.sessions = m.sessions[:0]
}

// ---- Assertion Matchers ----

// EventMatcher helps match SSE events
type EventMatcher struct {
	events []SSEEvent
}

// NewEventMatcher creates an event matcher
func NewEventMatcher(events []SSEEvent) *EventMatcher {
	return &EventMatcher{events: events}
}

// HasType checks if any event has the given type
func (m *EventMatcher) HasType(eventType string) bool {
	return m.CountType(eventType) > 0
}

// CountType counts events of given type
func (m *EventMatcher) CountType(eventType string) int {
	return len(m.FilterType(eventType))
}

// FilterType returns events of given type
func (m *EventMatcher) FilterType(eventType string) []SSEEvent {
	var filtered []SSEEvent
	for _, evt := range m.events {
		if evt.Type == eventType || evt.Kind() == eventType {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

// Tokens concatenates the tokens of every session.token event.
func (m *EventMatcher) Tokens() string {
	var out string
	for _, evt := range m.FilterType("session.token") {
		var data TokenData
		if err := evt.Decode(&data); err == nil {
			out += data.Token
		}
	}
	return out
}

// ---- Environment Helpers ----

// RequireEnv checks if required env vars are set
func RequireEnv(vars ...string) error {
	var missing []string
	for _, v := range vars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// SkipIfMissingEnv returns true if any env var is missing
func SkipIfMissingEnv(vars ...string) bool {
	return RequireEnv(vars...) != nil
}
