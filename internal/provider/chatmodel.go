package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelBackend adapts an Eino chat model to Backend. The prompt is sent
// as a single user message and the streamed message content becomes tokens.
type ChatModelBackend struct {
	name      string
	chatModel model.BaseChatModel
	models    []ModelInfo
	maxTokens int
}

// NewChatModelBackend wraps chatModel. models is the static catalogue
// reported by ListModels.
func NewChatModelBackend(name string, chatModel model.BaseChatModel, models []string, maxTokens int) *ChatModelBackend {
	infos := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		infos = append(infos, ModelInfo{Name: m, Backend: name})
	}
	return &ChatModelBackend{
		name:      name,
		chatModel: chatModel,
		models:    infos,
		maxTokens: maxTokens,
	}
}

// Name returns the backend identifier.
func (b *ChatModelBackend) Name() string { return b.name }

// ChatModel returns the Eino chat model.
func (b *ChatModelBackend) ChatModel() model.BaseChatModel { return b.chatModel }

// Health reports whether a chat model is configured. Hosted APIs are not
// probed, so an unreachable endpoint only shows up on the first request.
func (b *ChatModelBackend) Health(ctx context.Context) (bool, error) {
	return b.chatModel != nil, nil
}

func (b *ChatModelBackend) ListModels(ctx context.Context) ([]ModelInfo, error) {
	out := make([]ModelInfo, len(b.models))
	copy(out, b.models)
	return out, nil
}

func (b *ChatModelBackend) PullModel(ctx context.Context, name string) error {
	return fmt.Errorf("%s pull %s: %w", b.name, name, ErrUnsupported)
}

func (b *ChatModelBackend) options(modelName string) []model.Option {
	var opts []model.Option
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}
	if b.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(b.maxTokens))
	}
	return opts
}

func (b *ChatModelBackend) GenerateOnce(ctx context.Context, modelName, prompt string) (string, error) {
	msg, err := b.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, b.options(modelName)...)
	if err != nil {
		return "", wrapError(b.name, "generate", err)
	}
	return msg.Content, nil
}

func (b *ChatModelBackend) GenerateStream(ctx context.Context, modelName, prompt string) (*TokenStream, error) {
	stream, err := b.chatModel.Stream(ctx, []*schema.Message{schema.UserMessage(prompt)}, b.options(modelName)...)
	if err != nil {
		return nil, wrapError(b.name, "generate stream", err)
	}

	tokens := schema.StreamReaderWithConvert(stream, func(msg *schema.Message) (string, error) {
		if msg == nil || msg.Content == "" {
			return "", schema.ErrNoValue
		}
		return msg.Content, nil
	})
	return NewTokenStream(tokens), nil
}
