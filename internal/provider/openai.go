package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
)

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	// Name is the backend identifier. Defaults to "openai".
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAIBackend creates a backend for the OpenAI API or any server that
// speaks its chat-completions protocol.
func NewOpenAIBackend(ctx context.Context, config OpenAIConfig) (*ChatModelBackend, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("OPENAI_MODEL_ID")
	}
	if modelID == "" {
		modelID = "gpt-4o"
	}

	cfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	name := config.Name
	if name == "" {
		name = "openai"
	}
	models := []string{modelID}
	for _, m := range []string{"gpt-4o", "gpt-4o-mini", "gpt-5", "gpt-5-mini"} {
		if m != modelID {
			models = append(models, m)
		}
	}
	// MaxCompletionTokens is already set on the model config.
	return NewChatModelBackend(name, chatModel, models, 0), nil
}
