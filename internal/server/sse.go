package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashosive/agent-runtime/internal/event"
)

// StreamEvent is the payload of session stream events.
type StreamEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// startSSE sets the event-stream headers and flushes them.
func startSSE(w http.ResponseWriter) (*sseWriter, error) {
	sse, err := newSSEWriter(w)
	if err != nil {
		return nil, err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()
	return sse, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	if err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// mirroredEvent is the part of a mirrored watermill payload used for filtering.
type mirroredEvent struct {
	Data struct {
		SessionID string `json:"sessionID"`
		Info      struct {
			ID string `json:"id"`
		} `json:"info"`
	} `json:"data"`
}

func (m mirroredEvent) sessionID() string {
	if m.Data.SessionID != "" {
		return m.Data.SessionID
	}
	return m.Data.Info.ID
}

// allEvents handles GET /event by relaying the bus's watermill topic.
// ?sessionID= restricts the stream to one session.
func (srv *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("sessionID")

	msgs, err := srv.manager.Bus().Messages(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	sse, err := startSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if err := sse.writeEvent("message", StreamEvent{Type: "server.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if filter != "" {
				var m mirroredEvent
				if err := json.Unmarshal(msg.Payload, &m); err != nil || m.sessionID() != filter {
					msg.Ack()
					continue
				}
			}
			err := sse.writeEvent("message", json.RawMessage(msg.Payload))
			msg.Ack()
			if err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// sessionStream handles GET /session/{sessionID}/stream. It relays the
// session's events until the session ends, is removed, or the client leaves.
func (srv *Server) sessionStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !srv.manager.ExistsSession(sessionID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	events := make(chan event.Event, 64)
	unsub := srv.manager.Bus().SubscribeAll(func(e event.Event) {
		if eventSessionID(e) != sessionID {
			return
		}
		select {
		case events <- e:
		default:
			srv.log.Warn().
				Str("eventType", string(e.Type)).
				Str("sessionID", sessionID).
				Msg("SSE session event dropped: channel full")
		}
	})
	defer unsub()

	sse, err := startSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(string(e.Type), StreamEvent{Type: e.Type, Properties: e.Data}); err != nil {
				return
			}
			if e.Type == event.SessionEnded || e.Type == event.SessionRemoved {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventSessionID returns the session an event belongs to.
func eventSessionID(e event.Event) string {
	switch data := e.Data.(type) {
	case event.SessionCreatedData:
		return data.Info.ID
	case event.SessionTransitionData:
		return data.SessionID
	case event.SessionRemovedData:
		return data.SessionID
	case event.SessionModelSetData:
		return data.SessionID
	case event.SessionInputData:
		return data.SessionID
	case event.SessionTokenData:
		return data.SessionID
	case event.SessionIdleData:
		return data.SessionID
	}
	return ""
}
