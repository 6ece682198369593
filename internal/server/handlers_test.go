package server

import (
	"bytes"
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
	"github.com/ashosive/agent-runtime/internal/inference"
	"github.com/ashosive/agent-runtime/internal/manager"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
)

type stubBackend struct {
	reply   string
	tokens  []string
	models  []provider.ModelInfo
	healthy bool
	pullErr error
	prompts []string
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Health(context.Context) (bool, error) { return b.healthy, nil }

func (b *stubBackend) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return b.models, nil
}

func (b *stubBackend) PullModel(context.Context, string) error { return b.pullErr }

func (b *stubBackend) GenerateOnce(_ context.Context, _, prompt string) (string, error) {
	b.prompts = append(b.prompts, prompt)
	return b.reply, nil
}

func (b *stubBackend) GenerateStream(context.Context, string, string) (*provider.TokenStream, error) {
	return provider.StaticTokenStream(b.tokens...), nil
}

func setupTestServer(t *testing.T) (*Server, *stubBackend) {
	t.Helper()
	backend := &stubBackend{
		reply:   "agents act on goals",
		tokens:  []string{"agents", " act"},
		models:  []provider.ModelInfo{{Name: "llama3.2:latest"}, {Name: "qwen2.5:7b"}},
		healthy: true,
	}
	bus := event.NewBus()
	mgr := manager.New(manager.Options{
		Backend: backend,
		Bus:     bus,
		Pipeline: inference.PipelineConfig{
			PollInterval:      time.Hour,
			InactivityTimeout: time.Hour,
			FallbackInterval:  time.Millisecond,
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
		_ = bus.Close()
	})

	cfg := DefaultConfig()
	cfg.EnableCORS = false
	return New(cfg, mgr), backend
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(data)
		}
		reader = bytes.NewReader([]byte(raw))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, srv *Server, body any) CreateSessionResponse {
	t.Helper()
	w := do(t, srv, "POST", "/session", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CreateSessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error.Code
}

func TestListSessions_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "GET", "/session", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}
}

func TestCreateSession(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := createSession(t, srv, map[string]any{"system_prompt": "Be terse.", "max_tokens": 512})

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, resp.Session.ID)
	assert.Equal(t, session.StatePending, resp.Session.State)
	assert.Equal(t, "Be terse.", resp.Session.ContextSeed.SystemPrompt)
	assert.Equal(t, uint32(512), resp.Session.Limits.MaxTokens)
	assert.Equal(t, session.DefaultMaxDurationMS, resp.Session.Limits.MaxDurationMS)
	assert.Nil(t, resp.Session.Model)
}

func TestCreateSession_EmptyBody(t *testing.T) {
	srv, _ := setupTestServer(t)
	srv.config.DefaultModel = "llama3.2"

	resp := createSession(t, srv, nil)

	assert.Equal(t, session.DefaultSystemPrompt, resp.Session.ContextSeed.SystemPrompt)
	require.NotNil(t, resp.Session.Model)
	assert.Equal(t, "llama3.2", *resp.Session.Model)
}

func TestCreateSession_InvalidJSON(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/session", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidRequest, errorCode(t, w))
}

func TestGetSession(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, nil)

	w := do(t, srv, "GET", "/session/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view session.View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	assert.Equal(t, created.SessionID, view.ID)
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "GET", "/session/nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, w))
}

func TestDeleteSession(t *testing.T) {
	srv, _ := setupTestServer(t)
	a := createSession(t, srv, nil)
	b := createSession(t, srv, nil)

	w := do(t, srv, "DELETE", "/session/"+a.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/session", nil)
	var list []session.View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, b.SessionID, list[0].ID)

	w = do(t, srv, "DELETE", "/session/"+a.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetSessionModel(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, nil)
	path := "/session/" + created.SessionID + "/model"

	w := do(t, srv, "PUT", path, SetModelRequest{Model: "qwen2.5:7b"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view session.View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	require.NotNil(t, view.Model)
	assert.Equal(t, "qwen2.5:7b", *view.Model)

	w = do(t, srv, "PUT", path, SetModelRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "PUT", "/session/nope/model", SetModelRequest{Model: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetSessionModel_Verify(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, nil)
	path := "/session/" + created.SessionID + "/model"

	w := do(t, srv, "PUT", path, SetModelRequest{Model: "llama3.2", Verify: true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "PUT", path, SetModelRequest{Model: "llama3.1", Verify: true})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, ErrCodeUnknownModel, resp.Error.Code)
	assert.Equal(t, "llama3.2:latest", resp.Error.Details["suggestion"])
}

func TestLifecycle(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, nil)
	base := "/session/" + created.SessionID

	w := do(t, srv, "POST", base+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeInvalidState, errorCode(t, w))

	w = do(t, srv, "POST", base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var start session.StartReceipt
	require.NoError(t, json.NewDecoder(w.Body).Decode(&start))
	assert.False(t, start.WasNoop)
	assert.Equal(t, session.StateActive, start.NewState)

	w = do(t, srv, "POST", base+"/start", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&start))
	assert.True(t, start.WasNoop)

	for _, step := range []struct {
		op   string
		want session.State
	}{
		{"pause", session.StatePaused},
		{"suspend", session.StateSuspended},
		{"end", session.StateEnded},
	} {
		w = do(t, srv, "POST", base+"/"+step.op, nil)
		require.Equal(t, http.StatusOK, w.Code, step.op)
		var r session.TransitionReceipt
		require.NoError(t, json.NewDecoder(w.Body).Decode(&r))
		assert.Equal(t, step.want, r.NewState)
	}

	w = do(t, srv, "POST", base+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInfer(t *testing.T) {
	srv, backend := setupTestServer(t)
	created := createSession(t, srv, map[string]any{"system_prompt": "sys", "model": "llama3.2"})
	base := "/session/" + created.SessionID

	w := do(t, srv, "POST", base+"/infer", InferRequest{})
	assert.Equal(t, http.StatusConflict, w.Code, "pending sessions cannot infer")

	require.Equal(t, http.StatusOK, do(t, srv, "POST", base+"/start", nil).Code)

	input := "what is ai agent?"
	w = do(t, srv, "POST", base+"/infer", InferRequest{Input: &input})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp InferResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "agents act on goals", resp.Response)
	assert.Equal(t, "sys\n\nUser: what is ai agent?", backend.prompts[len(backend.prompts)-1])

	w = do(t, srv, "POST", base+"/infer", InferRequest{Prompt: "raw"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "raw", backend.prompts[len(backend.prompts)-1])
}

func TestInfer_NoModel(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, nil)
	base := "/session/" + created.SessionID
	require.Equal(t, http.StatusOK, do(t, srv, "POST", base+"/start", nil).Code)

	w := do(t, srv, "POST", base+"/infer", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ErrCodeNoModel, errorCode(t, w))
}

func TestInfer_Stream(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, map[string]any{"model": "llama3.2"})
	base := "/session/" + created.SessionID
	require.Equal(t, http.StatusOK, do(t, srv, "POST", base+"/start", nil).Code)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+base+"/infer", "application/json", strings.NewReader(`{"stream": true}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := readSSE(t, resp)
	require.Len(t, events, 3)
	assert.Equal(t, "token", events[0].name)
	assert.JSONEq(t, `{"token":"agents"}`, events[0].data)
	assert.JSONEq(t, `{"token":" act"}`, events[1].data)
	assert.Equal(t, "done", events[2].name)
}

func TestApplyInput(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createSession(t, srv, map[string]any{"system_prompt": "sys"})
	base := "/session/" + created.SessionID

	w := do(t, srv, "POST", base+"/input", InputRequest{Text: "hi"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, do(t, srv, "POST", base+"/start", nil).Code)

	w = do(t, srv, "POST", base+"/input", InputRequest{Text: "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp InputResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sys\n\nUser: hi", resp.Prompt)
}

func TestModelsAndHealth(t *testing.T) {
	srv, backend := setupTestServer(t)

	w := do(t, srv, "GET", "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var models []provider.ModelInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&models))
	assert.Len(t, models, 2)

	w = do(t, srv, "POST", "/models/pull", PullRequest{Name: "llama3.2"})
	assert.Equal(t, http.StatusOK, w.Code)

	backend.pullErr = provider.ErrUnsupported
	w = do(t, srv, "POST", "/models/pull", PullRequest{Name: "llama3.2"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = do(t, srv, "POST", "/models/pull", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	createSession(t, srv, nil)
	w = do(t, srv, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.True(t, health.Healthy)
	assert.Equal(t, "stub", health.Backend)
	assert.Equal(t, 1, health.Sessions)

	backend.healthy = false
	w = do(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
