package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashosive/agent-runtime/internal/config"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentd HTTP server",
	Long: `Start agentd as a server that exposes sessions over an HTTP API.

Session events are streamed at /event and per session at
/session/{id}/stream as server-sent events.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload the log level when config files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("version", Version).Msg("starting agentd server")

	backend, err := newBackend(ctx, appConfig)
	if err != nil {
		return err
	}
	mgr := newManager(appConfig, backend)

	serverConfig := server.DefaultConfig()
	serverConfig.Host = appConfig.Server.Host
	serverConfig.Port = appConfig.Server.Port
	serverConfig.CORSOrigins = appConfig.Server.CORS
	serverConfig.DefaultModel = appConfig.DefaultModel
	if serveHostname != "" {
		serverConfig.Host = serveHostname
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}

	srv := server.New(serverConfig, mgr)

	if serveWatch {
		dir, err := GetWorkDir(workDir)
		if err != nil {
			return err
		}
		watcher, err := config.Watch(dir, func(cfg *config.Config) {
			level := logging.ParseLevel(cfg.Log.Level)
			logging.SetLevel(level)
			logging.Info().Str("level", level.String()).Msg("config reloaded")
		})
		if err != nil {
			logging.Warn().Err(err).Msg("config watch disabled")
		} else {
			defer watcher.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logging.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("server shutdown error")
		}
		return mgr.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logging.Info().Msg("server stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
