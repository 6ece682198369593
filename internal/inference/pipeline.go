package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashosive/agent-runtime/internal/event"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/session"
)

const (
	// DefaultPollInterval is how often the reaper checks a session.
	DefaultPollInterval = 100 * time.Second
	// DefaultInactivityTimeout is how long an Active session may go without a heartbeat.
	DefaultInactivityTimeout = 120 * time.Second
	// DefaultFallbackTokens is the number of placeholder tokens emitted when the backend is unavailable.
	DefaultFallbackTokens = 5
	// DefaultFallbackInterval is the delay between placeholder tokens.
	DefaultFallbackInterval = 200 * time.Millisecond
)

// ReasonInactivity is the reason attached to sessions ended by the reaper.
const ReasonInactivity = "inactivity"

// PipelineConfig tunes the per-session pipeline. Zero fields take defaults.
type PipelineConfig struct {
	PollInterval      time.Duration
	InactivityTimeout time.Duration
	FallbackTokens    int
	FallbackInterval  time.Duration
}

// DefaultPipelineConfig returns the production settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PollInterval:      DefaultPollInterval,
		InactivityTimeout: DefaultInactivityTimeout,
		FallbackTokens:    DefaultFallbackTokens,
		FallbackInterval:  DefaultFallbackInterval,
	}
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.FallbackTokens <= 0 {
		c.FallbackTokens = d.FallbackTokens
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = d.FallbackInterval
	}
	return c
}

// Pipeline is the long-running task launched for each non-noop Start. It
// streams one response for the session's current prompt, keeps the session's
// heartbeat fresh while tokens arrive, then watches the session and ends it
// once it has been idle for InactivityTimeout.
type Pipeline struct {
	engine *Engine
	cfg    PipelineConfig
	log    zerolog.Logger
}

// NewPipeline creates a pipeline that runs inference through engine.
func NewPipeline(engine *Engine, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		engine: engine,
		cfg:    cfg.withDefaults(),
		log:    logging.Component("pipeline"),
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() PipelineConfig { return p.cfg }

// Run executes the pipeline for id until the session ends, disappears,
// leaves Active, or ctx is cancelled. Failures are logged, never returned.
func (p *Pipeline) Run(ctx context.Context, id string) {
	log := p.log.With().Str("sessionID", id).Logger()

	prompt, err := BuildPrompt(p.engine.reg, id)
	if err != nil {
		log.Debug().Err(err).Msg("pipeline not started")
		return
	}

	tokens, streamErr := p.stream(ctx, id, prompt, log)
	p.heartbeat(id, 0)

	idle := event.SessionIdleData{SessionID: id, Tokens: tokens}
	if streamErr != nil {
		idle.Error = streamErr.Error()
	}
	p.engine.bus.Publish(event.Event{Type: event.SessionIdle, Data: idle})
	log.Info().Uint64("tokens", tokens).Msg("stream finished")

	p.reap(ctx, id, log)
}

// stream consumes the backend stream, or the synthetic fallback when the
// stream cannot be opened. It returns the number of real tokens received.
func (p *Pipeline) stream(ctx context.Context, id, prompt string, log zerolog.Logger) (uint64, error) {
	ts, err := p.engine.InferStream(ctx, id, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("inference unavailable, emitting placeholder tokens")
		p.fallback(ctx, id)
		return 0, err
	}
	defer ts.Close()

	var n uint64
	for {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		tok, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			log.Warn().Err(err).Uint64("tokens", n).Msg("stream interrupted")
			return n, err
		}
		n++
		p.heartbeat(id, 1)
		p.engine.bus.PublishSync(event.Event{
			Type: event.SessionToken,
			Data: event.SessionTokenData{SessionID: id, Token: tok},
		})
	}
}

// fallback emits FallbackTokens placeholder tokens FallbackInterval apart.
// Placeholders refresh the heartbeat but are not counted as output.
func (p *Pipeline) fallback(ctx context.Context, id string) {
	for i := 1; i <= p.cfg.FallbackTokens; i++ {
		p.heartbeat(id, 0)
		p.engine.bus.PublishSync(event.Event{
			Type: event.SessionToken,
			Data: event.SessionTokenData{
				SessionID: id,
				Token:     fmt.Sprintf("fake token %d", i),
				Synthetic: true,
			},
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.FallbackInterval):
		}
	}
}

// heartbeat refreshes UpdatedAt and adds outputTokens to the session's
// accounting. A session that has disappeared is ignored. A failed update,
// such as on a poisoned handle, is logged and returned; the reaper ends the
// pipeline on its next poll.
func (p *Pipeline) heartbeat(id string, outputTokens uint64) error {
	h, ok := p.engine.reg.Get(id)
	if !ok {
		return nil
	}
	now := p.engine.now()
	err := h.Update(func(s *session.Session) error {
		s.Touch(now)
		s.RecordOutputTokens(outputTokens)
		return nil
	})
	if err != nil {
		p.engine.log.Debug().Err(err).Str("sessionID", id).Msg("heartbeat not recorded")
	}
	return err
}

// reap polls the session every PollInterval and ends it once it has been
// Active without a heartbeat for InactivityTimeout. It never refreshes the
// heartbeat itself.
func (p *Pipeline) reap(ctx context.Context, id string, log zerolog.Logger) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("reaper cancelled")
			return
		case <-ticker.C:
		}

		h, ok := p.engine.reg.Get(id)
		if !ok {
			log.Debug().Msg("session removed, reaper exiting")
			return
		}

		done, err := p.check(h, log)
		if err != nil {
			log.Warn().Err(err).Msg("reaper exiting")
			return
		}
		if done {
			return
		}
	}
}

// check inspects the session once. It reports true when the reaper should stop.
func (p *Pipeline) check(h *session.Handle, log zerolog.Logger) (bool, error) {
	var active, expired bool
	err := h.Read(func(s *session.Session) error {
		active = s.State() == session.StateActive
		expired = p.engine.now().Sub(s.UpdatedAt()) >= p.cfg.InactivityTimeout
		return nil
	})
	if err != nil {
		return true, err
	}
	if !active {
		return true, nil
	}
	if !expired {
		return false, nil
	}

	var (
		receipt session.TransitionReceipt
		ended   bool
		stop    bool
	)
	err = h.Update(func(s *session.Session) error {
		now := p.engine.now()
		// A heartbeat or transition may have landed between the two locks.
		if s.State() != session.StateActive {
			stop = true
			return nil
		}
		if now.Sub(s.UpdatedAt()) < p.cfg.InactivityTimeout {
			return nil
		}
		r, err := session.End(s, now)
		if err != nil {
			return err
		}
		receipt, ended = r, true
		return nil
	})
	if err != nil {
		return true, err
	}
	if !ended {
		return stop, nil
	}

	log.Info().Dur("timeout", p.cfg.InactivityTimeout).Msg("session ended after inactivity")
	p.engine.bus.Publish(event.Event{
		Type: event.SessionEnded,
		Data: event.SessionTransitionData{
			SessionID: receipt.SessionID,
			PrevState: receipt.PrevState,
			NewState:  receipt.NewState,
			UpdatedAt: receipt.UpdatedAt,
			Reason:    ReasonInactivity,
		},
	})
	return true, nil
}
