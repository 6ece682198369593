package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashosive/agent-runtime/internal/event"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
)

// ErrNoModel is returned when inference is requested for a session that has
// no backend model configured.
var ErrNoModel = errors.New("no model configured for this session")

// Engine runs inference requests for registered sessions.
type Engine struct {
	reg     *session.Registry
	backend provider.Backend
	bus     *event.Bus
	now     func() time.Time
	log     zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBus publishes input events to bus instead of the global bus.
func WithBus(bus *event.Bus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithClock overrides the time source used for heartbeats.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over reg that sends requests to backend.
func NewEngine(reg *session.Registry, backend provider.Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		reg:     reg,
		backend: backend,
		bus:     event.Default(),
		now:     time.Now,
		log:     logging.Component("inference"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the session registry the engine reads from.
func (e *Engine) Registry() *session.Registry { return e.reg }

// Backend returns the model backend.
func (e *Engine) Backend() provider.Backend { return e.backend }

// target validates that id names an Active session with a model and returns
// its handle and model. No lock is held on return.
func (e *Engine) target(id string) (*session.Handle, string, error) {
	h, ok := e.reg.Get(id)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	var model string
	err := h.Read(func(s *session.Session) error {
		if s.State() != session.StateActive {
			return &session.InvalidStateError{Op: "infer", State: s.State()}
		}
		m, ok := s.Model()
		if !ok {
			return ErrNoModel
		}
		model = m
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return h, model, nil
}

// record books a completed backend request against the session.
func (e *Engine) record(h *session.Handle, promptTokens, outputTokens uint64) {
	err := h.Update(func(s *session.Session) error {
		s.RecordRequest()
		s.RecordPromptTokens(promptTokens)
		s.RecordOutputTokens(outputTokens)
		return nil
	})
	if err != nil {
		e.log.Warn().Err(err).Str("sessionID", h.ID()).Msg("failed to record accounting")
	}
}

// InferOnce sends prompt to the session's model and returns the full response.
func (e *Engine) InferOnce(ctx context.Context, id, prompt string) (string, error) {
	h, model, err := e.target(id)
	if err != nil {
		return "", err
	}

	out, err := e.backend.GenerateOnce(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	e.record(h, approxTokens(prompt), approxTokens(out))
	return out, nil
}

// InferStream starts a streamed response to prompt from the session's model.
// Output tokens are not counted here; whoever consumes the stream does that.
func (e *Engine) InferStream(ctx context.Context, id, prompt string) (*provider.TokenStream, error) {
	h, model, err := e.target(id)
	if err != nil {
		return nil, err
	}

	stream, err := e.backend.GenerateStream(ctx, model, prompt)
	if err != nil {
		return nil, err
	}
	e.record(h, approxTokens(prompt), 0)
	return stream, nil
}

// ApplyUserInput records text as the latest user turn and publishes a
// session.input event.
func (e *Engine) ApplyUserInput(id, text string) (string, error) {
	prompt, err := applyUserInput(e.reg, id, text, e.now())
	if err != nil {
		return "", err
	}
	e.bus.Publish(event.Event{
		Type: event.SessionInput,
		Data: event.SessionInputData{SessionID: id, Text: text},
	})
	return prompt, nil
}

// InferOnceWithInput applies input and runs InferOnce on the rebuilt prompt.
func (e *Engine) InferOnceWithInput(ctx context.Context, id, input string) (string, error) {
	prompt, err := e.ApplyUserInput(id, input)
	if err != nil {
		return "", err
	}
	return e.InferOnce(ctx, id, prompt)
}

// InferStreamWithInput applies input and runs InferStream on the rebuilt prompt.
func (e *Engine) InferStreamWithInput(ctx context.Context, id, input string) (*provider.TokenStream, error) {
	prompt, err := e.ApplyUserInput(id, input)
	if err != nil {
		return nil, err
	}
	return e.InferStream(ctx, id, prompt)
}
