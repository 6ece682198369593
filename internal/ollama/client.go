// Package ollama is a small client for the Ollama HTTP API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ashosive/agent-runtime/internal/logging"
)

const (
	// DefaultBaseURL is where a local Ollama server listens.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 600 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = 250 * time.Millisecond
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 5 * time.Second
)

// ErrDecode wraps every failure to decode a response body.
var ErrDecode = errors.New("ollama: decode")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama: status %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama: status %d body %s", e.StatusCode, e.Body)
}

// Client talks to one Ollama server.
type Client struct {
	baseURL    string
	http       *http.Client
	stream     *http.Client
	maxRetries uint64
	initial    time.Duration
	maxBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for non-streaming requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the timeout of non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initial = initial
		c.maxBackoff = max
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: DefaultTimeout},
		stream:     &http.Client{},
		maxRetries: DefaultMaxRetries,
		initial:    RetryInitialInterval,
		maxBackoff: RetryMaxInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// do sends a request, retrying network failures and 5xx responses. Client
// errors are returned immediately. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	op := func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode < 500 {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	notify := func(err error, wait time.Duration) {
		logging.Debug().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("wait", wait).
			Msg("ollama request failed, retrying")
	}

	return backoff.RetryNotifyWithData(op, c.newBackoff(ctx), notify)
}

// Health reports whether the server answers GET /api/tags with a 2xx status.
// Transport failures are returned as errors.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// ListModels returns the models available on the server.
func (c *Client) ListModels(ctx context.Context) (*TagsResponse, error) {
	resp, err := c.do(ctx, c.http, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: tags: %v", ErrDecode, err)
	}
	return &tags, nil
}

// PullModel downloads name and blocks until the server reports completion.
// progress, if non-nil, receives every status line.
func (c *Client) PullModel(ctx context.Context, name string, progress func(PullProgress)) error {
	resp, err := c.do(ctx, c.stream, http.MethodPost, "/api/pull", PullRequest{Name: name, Stream: true})
	if err != nil {
		return fmt.Errorf("pull %s: %w", name, err)
	}
	defer resp.Body.Close()

	scanner := newLineScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("%w: pull %s: %v", ErrDecode, name, err)
		}
		if p.Error != "" {
			return fmt.Errorf("pull %s: %s", name, p.Error)
		}
		if progress != nil {
			progress(p)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pull %s: %w", name, err)
	}
	return nil
}

// GenerateOnce runs a non-streamed completion and returns the full response text.
func (c *Client) GenerateOnce(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.do(ctx, c.http, http.MethodPost, "/api/generate", GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: generate: %v", ErrDecode, err)
	}
	return out.Response, nil
}

// GenerateStream starts a streamed completion. Only opening the stream is
// retried; a stream that fails midway reports the error from Recv.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string) (*Stream, error) {
	resp, err := c.do(ctx, c.stream, http.MethodPost, "/api/generate", GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return nil, err
	}
	return &Stream{body: resp.Body, scanner: newLineScanner(resp.Body)}, nil
}

// Stream reads the NDJSON chunks of a streamed generation.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next chunk. It returns io.EOF after the chunk marked done,
// or when the server closes the body cleanly.
func (s *Stream) Recv() (GenerateStreamChunk, error) {
	for !s.done && s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk GenerateStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return GenerateStreamChunk{}, fmt.Errorf("%w: stream chunk: %v", ErrDecode, err)
		}
		if chunk.Error != "" {
			return GenerateStreamChunk{}, fmt.Errorf("ollama: stream: %s", chunk.Error)
		}
		if chunk.IsDone() {
			s.done = true
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return GenerateStreamChunk{}, err
	}
	return GenerateStreamChunk{}, io.EOF
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return scanner
}
