package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ashosive/agent-runtime/internal/ollama"
)

// Backend kinds accepted by New.
const (
	KindOllama = "ollama"
	KindOpenAI = "openai"
	KindClaude = "claude"
	KindArk    = "ark"
)

// Config selects and configures one backend.
type Config struct {
	// Name is the registry key and model prefix. Defaults to Kind.
	Name      string
	Kind      string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// RegistryName returns the name the backend is registered under.
func (c Config) RegistryName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Kind != "":
		return c.Kind
	default:
		return KindOllama
	}
}

// New builds the backend described by cfg. An empty Kind selects Ollama.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "", KindOllama:
		var opts []ollama.Option
		if cfg.Timeout > 0 {
			opts = append(opts, ollama.WithTimeout(cfg.Timeout))
		}
		return NewOllamaBackend(ollama.NewClient(cfg.BaseURL, opts...)), nil
	case KindOpenAI:
		return NewOpenAIBackend(ctx, OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case KindClaude, "anthropic":
		return NewClaudeBackend(ctx, ClaudeConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case KindArk:
		return NewArkBackend(ctx, ArkConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

// NewRegistryFromConfigs builds the primary backend and any additional ones.
// Each backend is registered under its RegistryName and the primary is the
// default. Additional backends that fail to initialise or reuse a name are
// skipped and reported through the returned error slice.
func NewRegistryFromConfigs(ctx context.Context, primary Config, extra ...Config) (*Registry, []error, error) {
	def, err := New(ctx, primary)
	if err != nil {
		return nil, nil, err
	}
	reg := NewRegistry(nil)
	if err := reg.RegisterAs(primary.RegistryName(), def); err != nil {
		return nil, nil, err
	}

	var skipped []error
	for _, cfg := range extra {
		name := cfg.RegistryName()
		b, err := New(ctx, cfg)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := reg.RegisterAs(name, b); err != nil {
			skipped = append(skipped, err)
		}
	}
	return reg, skipped, nil
}
