package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashosive/agent-runtime/internal/event"
	"github.com/ashosive/agent-runtime/internal/inference"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
	"github.com/ashosive/agent-runtime/internal/worker"
)

// Options configures a Manager. Nil fields get working defaults.
type Options struct {
	Registry *session.Registry
	Backend  provider.Backend
	Pool     *worker.Pool
	Bus      *event.Bus
	Pipeline inference.PipelineConfig
	Clock    func() time.Time
}

// Manager owns the session registry and launches one inference pipeline per
// session start.
type Manager struct {
	reg      *session.Registry
	pool     *worker.Pool
	bus      *event.Bus
	engine   *inference.Engine
	pipeline *inference.Pipeline
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a manager.
func New(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry(session.DefaultShards)
	}
	if opts.Pool == nil {
		opts.Pool = worker.NewPool(0)
	}
	if opts.Bus == nil {
		opts.Bus = event.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	engine := inference.NewEngine(opts.Registry, opts.Backend,
		inference.WithBus(opts.Bus),
		inference.WithClock(opts.Clock),
	)

	return &Manager{
		reg:      opts.Registry,
		pool:     opts.Pool,
		bus:      opts.Bus,
		engine:   engine,
		pipeline: inference.NewPipeline(engine, opts.Pipeline),
		now:      opts.Clock,
		log:      logging.Component("manager"),
	}
}

// Engine returns the inference engine bound to this manager's registry.
func (m *Manager) Engine() *inference.Engine { return m.engine }

// Registry returns the session registry.
func (m *Manager) Registry() *session.Registry { return m.reg }

// Pool returns the worker pool pipelines run on.
func (m *Manager) Pool() *worker.Pool { return m.pool }

// Bus returns the event bus the manager publishes to.
func (m *Manager) Bus() *event.Bus { return m.bus }

func (m *Manager) handle(id string) (*session.Handle, error) {
	h, ok := m.reg.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return h, nil
}

// CreateSession builds a Pending session from req and registers it.
func (m *Manager) CreateSession(req session.CreateRequest) (*session.Handle, session.Receipt, error) {
	s, receipt := session.New(req)
	// s is private to this goroutine until Insert publishes it.
	view := s.View()
	h, err := m.reg.Insert(s)
	if err != nil {
		return nil, session.Receipt{}, err
	}

	m.bus.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: view},
	})
	m.log.Info().Str("sessionID", receipt.SessionID).Msg("session created")
	return h, receipt, nil
}

// CreateSessionWithModel creates a session and, when model is not empty,
// configures it. If the model cannot be set the session is removed again and
// the error is returned, so a failed call never leaves a registered session
// behind.
func (m *Manager) CreateSessionWithModel(req session.CreateRequest, model string) (*session.Handle, session.Receipt, error) {
	h, receipt, err := m.CreateSession(req)
	if err != nil {
		return nil, session.Receipt{}, err
	}
	if err := m.assignModel(receipt.SessionID, model); err != nil {
		return nil, session.Receipt{}, err
	}
	return h, receipt, nil
}

// assignModel sets model on a freshly created session, removing the session
// if that fails.
func (m *Manager) assignModel(id, model string) error {
	if model == "" {
		return nil
	}
	err := m.SetSessionModel(id, model)
	if err == nil {
		return nil
	}
	m.RemoveSession(id)
	m.log.Warn().Err(err).Str("sessionID", id).Msg("model not set, session removed")
	return fmt.Errorf("set model: %w", err)
}

// SetSessionModel configures the backend model of a session.
func (m *Manager) SetSessionModel(id, model string) error {
	h, err := m.handle(id)
	if err != nil {
		return err
	}
	err = h.Update(func(s *session.Session) error {
		s.SetModel(model, m.now())
		return nil
	})
	if err != nil {
		return err
	}

	m.bus.Publish(event.Event{
		Type: event.SessionModelSet,
		Data: event.SessionModelSetData{SessionID: id, Model: model},
	})
	return nil
}

// StartSession moves a session to Active. When the start is not a no-op the
// inference pipeline for the session is submitted to the worker pool; the
// call does not wait for it. If the pool has been shut down the receipt is
// still returned together with the error.
func (m *Manager) StartSession(id string) (session.StartReceipt, error) {
	h, err := m.handle(id)
	if err != nil {
		return session.StartReceipt{}, err
	}

	var receipt session.StartReceipt
	err = h.Update(func(s *session.Session) error {
		r, err := session.Start(s, m.now())
		receipt = r
		return err
	})
	if err != nil {
		return session.StartReceipt{}, err
	}

	if receipt.WasNoop {
		m.log.Debug().Str("sessionID", id).Msg("start on active session, heartbeat only")
		return receipt, nil
	}

	m.bus.Publish(event.Event{Type: event.SessionStarted, Data: transitionData(session.TransitionReceipt{
		SessionID: receipt.SessionID,
		PrevState: receipt.PrevState,
		NewState:  receipt.NewState,
		UpdatedAt: receipt.UpdatedAt,
	})})

	if err := m.pool.Go(func(ctx context.Context) {
		m.pipeline.Run(ctx, id)
	}); err != nil {
		m.log.Warn().Err(err).Str("sessionID", id).Msg("pipeline not launched")
		return receipt, fmt.Errorf("launch pipeline: %w", err)
	}

	m.log.Info().
		Str("sessionID", id).
		Str("prevState", string(receipt.PrevState)).
		Msg("session started")
	return receipt, nil
}

// PauseSession moves an Active session to Paused.
func (m *Manager) PauseSession(id string) (session.TransitionReceipt, error) {
	return m.transition(id, session.Pause, event.SessionPaused)
}

// SuspendSession moves an Active or Paused session to Suspended.
func (m *Manager) SuspendSession(id string) (session.TransitionReceipt, error) {
	return m.transition(id, session.Suspend, event.SessionSuspended)
}

// EndSession ends a session. Its pipeline, if any, stops at the next reaper poll.
func (m *Manager) EndSession(id string) (session.TransitionReceipt, error) {
	return m.transition(id, session.End, event.SessionEnded)
}

func (m *Manager) transition(
	id string,
	apply func(*session.Session, time.Time) (session.TransitionReceipt, error),
	typ event.EventType,
) (session.TransitionReceipt, error) {
	h, err := m.handle(id)
	if err != nil {
		return session.TransitionReceipt{}, err
	}

	var receipt session.TransitionReceipt
	err = h.Update(func(s *session.Session) error {
		r, err := apply(s, m.now())
		receipt = r
		return err
	})
	if err != nil {
		return session.TransitionReceipt{}, err
	}

	m.bus.Publish(event.Event{Type: typ, Data: transitionData(receipt)})
	return receipt, nil
}

func transitionData(r session.TransitionReceipt) event.SessionTransitionData {
	return event.SessionTransitionData{
		SessionID: r.SessionID,
		PrevState: r.PrevState,
		NewState:  r.NewState,
		UpdatedAt: r.UpdatedAt,
	}
}

// GetSession returns the handle registered under id.
func (m *Manager) GetSession(id string) (*session.Handle, bool) {
	return m.reg.Get(id)
}

// Snapshot returns a deep copy of the session taken under a read lock.
func (m *Manager) Snapshot(id string) (session.View, error) {
	h, err := m.handle(id)
	if err != nil {
		return session.View{}, err
	}
	return h.View()
}

// ListSessionIDs returns the registered ids in no particular order.
func (m *Manager) ListSessionIDs() []string {
	return m.reg.ListIDs()
}

// CountSessions returns the number of registered sessions.
func (m *Manager) CountSessions() int {
	return m.reg.Count()
}

// ExistsSession reports whether id is registered.
func (m *Manager) ExistsSession(id string) bool {
	return m.reg.Contains(id)
}

// RemoveSession detaches id from the registry. Handles already obtained stay
// usable and a running pipeline exits at its next reaper poll.
func (m *Manager) RemoveSession(id string) (*session.Handle, bool) {
	h, ok := m.reg.Remove(id)
	if !ok {
		return nil, false
	}
	m.bus.Publish(event.Event{
		Type: event.SessionRemoved,
		Data: event.SessionRemovedData{SessionID: id},
	})
	m.log.Debug().
		Str("sessionID", id).
		Int("retired", m.reg.RetiredCount()).
		Msg("session removed")
	return h, true
}

// Shutdown stops launching pipelines, cancels the running ones and waits for
// them to exit or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.pool.Shutdown(ctx)
}
