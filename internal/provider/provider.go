package provider

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/schema"
)

// ErrUnsupported is returned by backends that cannot perform an operation,
// e.g. pulling models from a hosted API.
var ErrUnsupported = errors.New("operation not supported by backend")

// Backend is a language-model server that sessions run inference against.
type Backend interface {
	// Name returns the backend identifier, e.g. "ollama" or "openai".
	Name() string

	// Health reports whether the backend is reachable and answering.
	Health(ctx context.Context) (bool, error)

	// ListModels returns the models the backend can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// PullModel makes a model available locally.
	PullModel(ctx context.Context, name string) error

	// GenerateOnce returns a complete, non-streamed response to prompt.
	GenerateOnce(ctx context.Context, model, prompt string) (string, error)

	// GenerateStream starts a streamed response to prompt.
	GenerateStream(ctx context.Context, model, prompt string) (*TokenStream, error)
}

// ModelInfo describes a model served by a backend.
type ModelInfo struct {
	Name       string  `json:"name"`
	Backend    string  `json:"backend,omitempty"`
	Size       *uint64 `json:"size,omitempty"`
	Digest     *string `json:"digest,omitempty"`
	Family     *string `json:"family,omitempty"`
	ModifiedAt *string `json:"modified_at,omitempty"`
}

// TokenStream wraps an Eino stream reader of text tokens.
type TokenStream struct {
	reader *schema.StreamReader[string]
}

// NewTokenStream creates a token stream over reader.
func NewTokenStream(reader *schema.StreamReader[string]) *TokenStream {
	return &TokenStream{reader: reader}
}

// StaticTokenStream returns a stream that yields tokens and then io.EOF.
func StaticTokenStream(tokens ...string) *TokenStream {
	return NewTokenStream(schema.StreamReaderFromArray(tokens))
}

// Recv returns the next token, or io.EOF once the stream is exhausted.
func (s *TokenStream) Recv() (string, error) {
	return s.reader.Recv()
}

// Close releases the stream. It is safe to call after io.EOF.
func (s *TokenStream) Close() {
	s.reader.Close()
}

// Collect drains the stream and concatenates its tokens.
func (s *TokenStream) Collect() (string, error) {
	defer s.Close()

	var out []byte
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, tok...)
	}
}
