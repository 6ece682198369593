package inference

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ashosive/agent-runtime/internal/provider"
)

// fakeBackend is a scriptable provider.Backend.
type fakeBackend struct {
	tokens    []string
	reply     string
	streamErr error
	onceErr   error

	calls int32

	mu      sync.Mutex
	prompts []string
	models  []string
}

func (f *fakeBackend) Name() string                                             { return "fake" }
func (f *fakeBackend) Health(context.Context) (bool, error)                     { return true, nil }
func (f *fakeBackend) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (f *fakeBackend) PullModel(context.Context, string) error                  { return nil }

func (f *fakeBackend) note(model, prompt string) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.models = append(f.models, model)
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
}

func (f *fakeBackend) callCount() int { return int(atomic.LoadInt32(&f.calls)) }

func (f *fakeBackend) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeBackend) GenerateOnce(_ context.Context, model, prompt string) (string, error) {
	f.note(model, prompt)
	if f.onceErr != nil {
		return "", f.onceErr
	}
	return f.reply, nil
}

func (f *fakeBackend) GenerateStream(_ context.Context, model, prompt string) (*provider.TokenStream, error) {
	f.note(model, prompt)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return provider.StaticTokenStream(f.tokens...), nil
}
