package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashosive/agent-runtime/internal/event"
	"github.com/ashosive/agent-runtime/internal/session"
)

// mockResponseWriter implements http.Flusher for testing
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

type sseEvent struct {
	name string
	data string
}

// readSSE reads events until the body ends.
func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

// nextEvent reads lines from scanner until one full event has arrived.
func nextEvent(scanner *bufio.Scanner) (sseEvent, bool) {
	var cur sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			return cur, true
		}
	}
	return cur, false
}

func TestNewSSEWriter(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter failed: %v", err)
	}
	if sse == nil {
		t.Fatal("SSE writer should not be nil")
	}
}

func TestNewSSEWriter_NoFlusher(t *testing.T) {
	w := &noFlushWriter{}
	_, err := newSSEWriter(w)
	if err == nil {
		t.Error("Expected error for writer without Flusher")
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	err := sse.writeEvent("test", map[string]string{"message": "hello"})
	if err != nil {
		t.Fatalf("writeEvent failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: test\n") {
		t.Error("Expected event line")
	}
	if !strings.Contains(body, `"message":"hello"`) {
		t.Error("Expected data to contain message")
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Error("Expected blank line terminating the event")
	}
	if w.flushed == 0 {
		t.Error("Expected Flush to be called")
	}
}

func TestSSEWriter_WriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, _ := newSSEWriter(w)

	sse.writeHeartbeat()

	if !strings.Contains(w.Body.String(), ": heartbeat\n") {
		t.Errorf("Expected heartbeat comment, got: %s", w.Body.String())
	}
}

func TestStartSSE_Headers(t *testing.T) {
	w := newMockResponseWriter()

	_, err := startSSE(w)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
}

func TestEventSessionID(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
		want string
	}{
		{"created", event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: session.View{ID: "a"}}}, "a"},
		{"transition", event.Event{Type: event.SessionEnded, Data: event.SessionTransitionData{SessionID: "b"}}, "b"},
		{"token", event.Event{Type: event.SessionToken, Data: event.SessionTokenData{SessionID: "c"}}, "c"},
		{"idle", event.Event{Type: event.SessionIdle, Data: event.SessionIdleData{SessionID: "d"}}, "d"},
		{"foreign", event.Event{Type: "other", Data: map[string]string{"sessionID": "e"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventSessionID(tt.ev))
		})
	}
}

func TestSessionStream(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, map[string]any{"model": "llama3.2"})
	base := "/session/" + created.SessionID

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+base+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The subscription exists once headers have been flushed.
	require.Equal(t, http.StatusOK, do(t, srv, "POST", base+"/start", nil).Code)

	scanner := bufio.NewScanner(resp.Body)
	var tokens []string
	for {
		ev, ok := nextEvent(scanner)
		require.True(t, ok, "stream closed early")
		if ev.name == string(event.SessionToken) {
			var payload struct {
				Properties event.SessionTokenData `json:"properties"`
			}
			require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
			tokens = append(tokens, payload.Properties.Token)
		}
		if ev.name == string(event.SessionIdle) {
			break
		}
	}
	assert.Equal(t, []string{"agents", " act"}, tokens)

	// Ending the session closes the stream.
	require.Equal(t, http.StatusOK, do(t, srv, "POST", base+"/end", nil).Code)
	for {
		ev, ok := nextEvent(scanner)
		if !ok {
			t.Fatal("stream closed before session.ended")
		}
		if ev.name == string(event.SessionEnded) {
			break
		}
	}
	_, more := nextEvent(scanner)
	assert.False(t, more)
}

func TestSessionStream_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "GET", "/session/nope/stream", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAllEvents_Filter(t *testing.T) {
	srv, _ := setupTestServer(t)
	a := createSession(t, srv, nil)
	b := createSession(t, srv, nil)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/event?sessionID="+a.SessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	first, ok := nextEvent(scanner)
	require.True(t, ok)
	assert.Contains(t, first.data, "server.connected")

	require.Equal(t, http.StatusOK, do(t, srv, "PUT", "/session/"+b.SessionID+"/model", SetModelRequest{Model: "x"}).Code)
	require.Equal(t, http.StatusOK, do(t, srv, "PUT", "/session/"+a.SessionID+"/model", SetModelRequest{Model: "y"}).Code)

	ev, ok := nextEvent(scanner)
	require.True(t, ok)
	var payload struct {
		Type event.EventType           `json:"type"`
		Data event.SessionModelSetData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
	assert.Equal(t, event.SessionModelSet, payload.Type)
	assert.Equal(t, a.SessionID, payload.Data.SessionID)
	assert.Equal(t, "y", payload.Data.Model)
}
