package commands

import (
	"context"
	"fmt"

	"github.com/ashosive/agent-runtime/internal/config"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/manager"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
	"github.com/ashosive/agent-runtime/internal/worker"
)

// newBackend builds the configured backends. Extra backends that fail to
// initialise are logged and left out.
func newBackend(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	extra := make([]provider.Config, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		extra = append(extra, b.ProviderConfig())
	}

	reg, skipped, err := provider.NewRegistryFromConfigs(ctx, cfg.Backend.ProviderConfig(), extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}
	for _, err := range skipped {
		logging.Warn().Err(err).Msg("backend skipped")
	}
	return reg, nil
}

// newManager wires a session manager over backend from cfg.
func newManager(cfg *config.Config, backend provider.Backend) *manager.Manager {
	shards := cfg.Registry.Shards
	if shards == 0 {
		shards = session.DefaultShards
	}
	return manager.New(manager.Options{
		Registry: session.NewRegistry(shards),
		Backend:  backend,
		Pool:     worker.NewPool(cfg.Pool.MaxConcurrent),
		Pipeline: cfg.InferencePipeline(),
	})
}
