package manager

import (
	"context"
	"sync/atomic"

	"github.com/ashosive/agent-runtime/internal/provider"
)

type fakeBackend struct {
	tokens    []string
	reply     string
	streamErr error
	streams   int32
}

func (f *fakeBackend) Name() string                                             { return "fake" }
func (f *fakeBackend) Health(context.Context) (bool, error)                     { return true, nil }
func (f *fakeBackend) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (f *fakeBackend) PullModel(context.Context, string) error                  { return nil }
func (f *fakeBackend) GenerateOnce(context.Context, string, string) (string, error) {
	return f.reply, nil
}

func (f *fakeBackend) GenerateStream(context.Context, string, string) (*provider.TokenStream, error) {
	atomic.AddInt32(&f.streams, 1)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return provider.StaticTokenStream(f.tokens...), nil
}

func (f *fakeBackend) streamCount() int { return int(atomic.LoadInt32(&f.streams)) }
