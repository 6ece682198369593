package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// Put performs HTTP PUT request with JSON body
func (c *TestClient) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts...)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ErrorBody is the error envelope returned by the API.
type ErrorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// ErrorCode returns the error code of a failed response, or "".
func (r *Response) ErrorCode() string {
	var body ErrorBody
	if err := r.JSON(&body); err != nil {
		return ""
	}
	return body.Error.Code
}

// StreamingResponse reads the SSE frames of a streamed POST.
type StreamingResponse struct {
	StatusCode int
	Headers    http.Header
	reader     *bufio.Reader
	body       io.ReadCloser
}

// PostStreaming performs HTTP POST and returns streaming response
func (c *TestClient) PostStreaming(ctx context.Context, path string, body any, opts ...RequestOption) (*StreamingResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	for _, opt := range opts {
		opt(req)
	}

	// Use client without timeout for streaming
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return &StreamingResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		reader:     bufio.NewReader(resp.Body),
		body:       resp.Body,
	}, nil
}

// ReadEvent reads the next SSE frame. Heartbeat comments are skipped.
func (sr *StreamingResponse) ReadEvent() (SSEEvent, error) {
	var evt SSEEvent
	var data strings.Builder
	for {
		line, err := sr.reader.ReadString('\n')
		if err != nil {
			return evt, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				evt.Data = json.RawMessage(data.String())
				return evt, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			evt.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// ReadAllEvents reads frames until the server closes the stream.
func (sr *StreamingResponse) ReadAllEvents() ([]SSEEvent, error) {
	var events []SSEEvent
	for {
		evt, err := sr.ReadEvent()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, evt)
	}
}

// Close closes the streaming response
func (sr *StreamingResponse) Close() error {
	if sr.body != nil {
		return sr.body.Close()
	}
	return nil
}

// ---- Session Helpers ----

// Session mirrors the session view returned by the API.
type Session struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Model     *string    `json:"model,omitempty"`
	Limits    struct {
		MaxTokens       uint32 `json:"max_tokens"`
		MaxDurationMS   uint64 `json:"max_duration_ms"`
		MaxContextBytes uint32 `json:"max_context_bytes"`
	} `json:"limits"`
	ContextSeed struct {
		SystemPrompt       string  `json:"system_prompt"`
		UserPromptSnapshot *string `json:"user_prompt_snapshot,omitempty"`
	} `json:"context_seed"`
	Accounting struct {
		PromptTokens uint64 `json:"prompt_tokens"`
		OutputTokens uint64 `json:"output_tokens"`
		Requests     uint64 `json:"requests"`
	} `json:"accounting"`
}

// Created is the body of a successful POST /session.
type Created struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Session   Session   `json:"session"`
}

// Transition is a lifecycle receipt.
type Transition struct {
	SessionID string `json:"session_id"`
	PrevState string `json:"prev_state"`
	NewState  string `json:"new_state"`
	WasNoop   bool   `json:"was_noop"`
}

// CreateSession creates a session. body may be nil for all defaults.
func (c *TestClient) CreateSession(ctx context.Context, body map[string]any) (*Created, error) {
	if body == nil {
		body = map[string]any{}
	}
	resp, err := c.Post(ctx, "/session", body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("failed to create session: %d - %s", resp.StatusCode, resp.String())
	}

	var created Created
	if err := resp.JSON(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetSession retrieves a session by ID
func (c *TestClient) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := c.Get(ctx, "/session/"+url.PathEscape(sessionID))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get session: %d - %s", resp.StatusCode, resp.String())
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a session
func (c *TestClient) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.Delete(ctx, "/session/"+url.PathEscape(sessionID))
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to delete session: %d - %s", resp.StatusCode, resp.String())
	}
	return nil
}

// ListSessions lists all sessions
func (c *TestClient) ListSessions(ctx context.Context) ([]Session, error) {
	resp, err := c.Get(ctx, "/session")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list sessions: %d - %s", resp.StatusCode, resp.String())
	}

	var sessions []Session
	if err := resp.JSON(&sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SetModel assigns model to a session without verifying it.
func (c *TestClient) SetModel(ctx context.Context, sessionID, model string) (*Response, error) {
	return c.Put(ctx, "/session/"+url.PathEscape(sessionID)+"/model", map[string]any{"model": model})
}

// Lifecycle posts to one of the start, pause, suspend or end endpoints.
func (c *TestClient) Lifecycle(ctx context.Context, sessionID, action string) (*Transition, *Response, error) {
	resp, err := c.Post(ctx, "/session/"+url.PathEscape(sessionID)+"/"+action, nil)
	if err != nil {
		return nil, nil, err
	}
	if !resp.IsSuccess() {
		return nil, resp, nil
	}

	var t Transition
	if err := resp.JSON(&t); err != nil {
		return nil, resp, err
	}
	return &t, resp, nil
}

// Infer runs a non-streamed inference with optional user input.
func (c *TestClient) Infer(ctx context.Context, sessionID, input string) (string, *Response, error) {
	resp, err := c.Post(ctx, "/session/"+url.PathEscape(sessionID)+"/infer", map[string]any{"input": input})
	if err != nil {
		return "", nil, err
	}
	if !resp.IsSuccess() {
		return "", resp, nil
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", resp, err
	}
	return out.Response, resp, nil
}
