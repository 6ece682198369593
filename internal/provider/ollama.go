package provider

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/ollama"
)

// streamBuffer is the capacity of the pipe between the HTTP reader and the consumer.
const streamBuffer = 16

// OllamaBackend implements Backend on top of an Ollama server.
type OllamaBackend struct {
	client *ollama.Client
}

// NewOllamaBackend wraps client.
func NewOllamaBackend(client *ollama.Client) *OllamaBackend {
	return &OllamaBackend{client: client}
}

// Name returns the backend identifier.
func (b *OllamaBackend) Name() string { return "ollama" }

// Client returns the underlying HTTP client.
func (b *OllamaBackend) Client() *ollama.Client { return b.client }

func (b *OllamaBackend) Health(ctx context.Context) (bool, error) {
	ok, err := b.client.Health(ctx)
	return ok, wrapError(b.Name(), "health", err)
}

func (b *OllamaBackend) ListModels(ctx context.Context) ([]ModelInfo, error) {
	tags, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, wrapError(b.Name(), "list models", err)
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, tag := range tags.Models {
		info := ModelInfo{
			Name:       tag.Name,
			Backend:    b.Name(),
			Size:       tag.Size,
			Digest:     tag.Digest,
			ModifiedAt: tag.ModifiedAt,
		}
		if tag.Details != nil {
			info.Family = tag.Details.Family
		}
		models = append(models, info)
	}
	return models, nil
}

func (b *OllamaBackend) PullModel(ctx context.Context, name string) error {
	log := logging.Component("ollama")
	err := b.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		log.Debug().
			Str("model", name).
			Str("status", p.Status).
			Int64("completed", p.Completed).
			Int64("total", p.Total).
			Msg("pull progress")
	})
	return wrapError(b.Name(), "pull", err)
}

func (b *OllamaBackend) GenerateOnce(ctx context.Context, model, prompt string) (string, error) {
	out, err := b.client.GenerateOnce(ctx, model, prompt)
	if err != nil {
		return "", wrapError(b.Name(), "generate", err)
	}
	return out, nil
}

// GenerateStream opens a streamed generation and forwards each non-empty
// response fragment as one token.
func (b *OllamaBackend) GenerateStream(ctx context.Context, model, prompt string) (*TokenStream, error) {
	stream, err := b.client.GenerateStream(ctx, model, prompt)
	if err != nil {
		return nil, wrapError(b.Name(), "generate stream", err)
	}

	sr, sw := schema.Pipe[string](streamBuffer)
	go func() {
		defer stream.Close()
		defer sw.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send("", wrapError(b.Name(), "generate stream", err))
				return
			}
			text := chunk.Text()
			if text == "" {
				continue
			}
			if closed := sw.Send(text, nil); closed {
				return
			}
		}
	}()

	return NewTokenStream(sr), nil
}
