package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/ashosive/agent-runtime/internal/ollama"
)

// MockOllamaServer provides an HTTP server that mimics the Ollama API for testing.
type MockOllamaServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []MockRequest
	models   []string
	reply    string
	delay    time.Duration
	failNext int
}

// MockRequest records incoming requests for verification.
type MockRequest struct {
	Timestamp time.Time
	Method    string
	Path      string
	Model     string
	Prompt    string
	Stream    bool
}

// NewMockOllamaServer creates a mock server that knows models.
func NewMockOllamaServer(models ...string) *MockOllamaServer {
	m := &MockOllamaServer{
		models: append([]string(nil), models...),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", m.handleTags)
	mux.HandleFunc("/api/generate", m.handleGenerate)
	mux.HandleFunc("/api/pull", m.handlePull)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server's URL.
func (m *MockOllamaServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOllamaServer) Close() {
	m.server.Close()
}

// SetReply fixes the generated text. By default the server echoes the
// latest user turn of the prompt.
func (m *MockOllamaServer) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

// SetTokenDelay sets the pause between streamed chunks.
func (m *MockOllamaServer) SetTokenDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailNext makes the next n generate requests answer 500.
func (m *MockOllamaServer) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Models returns the models the server currently has.
func (m *MockOllamaServer) Models() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...)
}

// GetRequests returns all recorded generate requests.
func (m *MockOllamaServer) GetRequests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

func (m *MockOllamaServer) hasModel(name string) bool {
	for _, model := range m.models {
		if model == name {
			return true
		}
	}
	return false
}

func (m *MockOllamaServer) handleTags(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	tags := ollama.TagsResponse{Models: make([]ollama.ModelTag, 0, len(m.models))}
	for _, name := range m.models {
		size := uint64(2 << 30)
		family := "llama"
		tags.Models = append(tags.Models, ollama.ModelTag{
			Name:    name,
			Size:    &size,
			Details: &ollama.ModelDetails{Family: &family},
		})
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tags)
}

func (m *MockOllamaServer) handlePull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ollama.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	if !m.hasModel(req.Name) {
		m.models = append(m.models, req.Name)
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, status := range []string{"pulling manifest", "verifying sha256 digest", "success"} {
		enc.Encode(ollama.PullProgress{Status: status})
	}
}

func (m *MockOllamaServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ollama.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{
		Timestamp: time.Now(),
		Method:    r.Method,
		Path:      r.URL.Path,
		Model:     req.Model,
		Prompt:    req.Prompt,
		Stream:    req.Stream,
	})
	fail := m.failNext > 0
	if fail {
		m.failNext--
	}
	known := m.hasModel(req.Model)
	reply := m.reply
	delay := m.delay
	m.mu.Unlock()

	if fail {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !known {
		http.Error(w, fmt.Sprintf(`{"error":"model '%s' not found"}`, req.Model), http.StatusNotFound)
		return
	}
	if reply == "" {
		reply = "echo: " + lastUserTurn(req.Prompt)
	}

	if req.Stream {
		m.writeStreamingResponse(w, req.Model, reply, delay)
	} else {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollama.GenerateResponse{Model: req.Model, Response: reply, Done: true})
	}
}

// writeStreamingResponse sends reply as NDJSON chunks, one word per chunk.
func (m *MockOllamaServer) writeStreamingResponse(w http.ResponseWriter, model, reply string, delay time.Duration) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for _, tok := range SplitTokens(reply) {
		enc.Encode(ollama.GenerateStreamChunk{Model: &model, Response: &tok})
		if flusher != nil {
			flusher.Flush()
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	done := true
	enc.Encode(ollama.GenerateStreamChunk{Model: &model, Done: &done})
}

// SplitTokens splits text the way the mock streams it: words with their
// trailing space kept, so the tokens concatenate back to text.
func SplitTokens(text string) []string {
	var tokens []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			tokens = append(tokens, text)
			break
		}
		tokens = append(tokens, text[:i+1])
		text = text[i+1:]
	}
	return tokens
}

func lastUserTurn(prompt string) string {
	if i := strings.LastIndex(prompt, "\n\nUser: "); i >= 0 {
		return prompt[i+len("\n\nUser: "):]
	}
	return prompt
}
