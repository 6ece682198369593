package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateBackend is returned when a backend name is registered twice.
var ErrDuplicateBackend = errors.New("backend already registered")

// Registry holds every configured backend under a unique name and routes
// model names of the form "name/model" to that backend. Bare model names go
// to the default backend. Registry itself implements Backend.
type Registry struct {
	mu          sync.RWMutex
	backends    map[string]Backend
	defaultName string
}

// NewRegistry creates a registry whose default backend is def.
func NewRegistry(def Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	if def != nil {
		r.backends[def.Name()] = def
		r.defaultName = def.Name()
	}
	return r
}

// Register adds b under its own Name. See RegisterAs.
func (r *Registry) Register(b Backend) error {
	return r.RegisterAs(b.Name(), b)
}

// RegisterAs adds b under name. The first backend registered becomes the
// default if none was set. A name that is already taken is rejected with
// ErrDuplicateBackend and the existing backend stays in place.
func (r *Registry) RegisterAs(name string, b Backend) error {
	if name == "" {
		return errors.New("backend name is required")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("backend name %q must not contain '/'", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, name)
	}
	r.backends[name] = b
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// Get retrieves a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend not found: %s", name)
	}
	return b, nil
}

// Default returns the default backend.
func (r *Registry) Default() (Backend, error) {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("no backends configured")
	}
	return r.Get(name)
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the backend serving model and the model name to send it.
func (r *Registry) Resolve(model string) (Backend, string, error) {
	backendName, modelID := ParseModelString(model)
	if backendName != "" {
		r.mu.RLock()
		b, ok := r.backends[backendName]
		r.mu.RUnlock()
		if ok {
			return b, modelID, nil
		}
	}
	// Unknown prefixes are part of the model name, e.g. "library/llama3".
	b, err := r.Default()
	if err != nil {
		return nil, "", err
	}
	return b, model, nil
}

// ParseModelString parses "backend/model" format.
func ParseModelString(s string) (backend, model string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// Name returns "registry".
func (r *Registry) Name() string { return "registry" }

// Health reports the default backend's health.
func (r *Registry) Health(ctx context.Context) (bool, error) {
	b, err := r.Default()
	if err != nil {
		return false, err
	}
	return b.Health(ctx)
}

// ListModels returns the models of every backend. Names from non-default
// backends carry their "name/" prefix so they round-trip through Resolve.
// A failing backend is skipped unless it is the only one.
func (r *Registry) ListModels(ctx context.Context) ([]ModelInfo, error) {
	r.mu.RLock()
	defaultName := r.defaultName
	names := make([]string, 0, len(r.backends))
	backends := make(map[string]Backend, len(r.backends))
	for name, b := range r.backends {
		names = append(names, name)
		backends[name] = b
	}
	r.mu.RUnlock()

	sort.Strings(names)

	var models []ModelInfo
	var firstErr error
	failed := 0
	for _, name := range names {
		list, err := backends[name].ListModels(ctx)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, m := range list {
			m.Backend = name
			if name != defaultName {
				m.Name = name + "/" + m.Name
			}
			models = append(models, m)
		}
	}
	if failed > 0 && failed == len(names) {
		return nil, firstErr
	}
	return models, nil
}

func (r *Registry) PullModel(ctx context.Context, model string) error {
	b, name, err := r.Resolve(model)
	if err != nil {
		return err
	}
	return b.PullModel(ctx, name)
}

func (r *Registry) GenerateOnce(ctx context.Context, model, prompt string) (string, error) {
	b, name, err := r.Resolve(model)
	if err != nil {
		return "", err
	}
	return b.GenerateOnce(ctx, name, prompt)
}

func (r *Registry) GenerateStream(ctx context.Context, model, prompt string) (*TokenStream, error) {
	b, name, err := r.Resolve(model)
	if err != nil {
		return nil, err
	}
	return b.GenerateStream(ctx, name, prompt)
}
