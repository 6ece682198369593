package testutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashosive/agent-runtime/internal/event"
	"github.com/ashosive/agent-runtime/internal/inference"
	"github.com/ashosive/agent-runtime/internal/manager"
	"github.com/ashosive/agent-runtime/internal/ollama"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/server"
	"github.com/ashosive/agent-runtime/internal/session"
	"github.com/ashosive/agent-runtime/internal/worker"
)

// TestServer wraps a server instance for testing
type TestServer struct {
	Server      *server.Server
	Manager     *manager.Manager
	Bus         *event.Bus
	BaseURL     string
	ProviderReg *provider.Registry
	port        int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	ollamaURL    string
	envFile      string
	pipeline     inference.PipelineConfig
	poolLimit    int
	defaultModel string
}

// WithOllamaURL points the backend at an Ollama server.
func WithOllamaURL(url string) TestServerOption {
	return func(c *testServerConfig) {
		c.ollamaURL = url
	}
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithPipeline sets the session pipeline timings.
func WithPipeline(cfg inference.PipelineConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.pipeline = cfg
	}
}

// WithPoolLimit bounds the number of concurrently running pipelines.
func WithPoolLimit(n int) TestServerOption {
	return func(c *testServerConfig) {
		c.poolLimit = n
	}
}

// WithDefaultModel sets the model given to sessions created without one.
func WithDefaultModel(model string) TestServerOption {
	return func(c *testServerConfig) {
		c.defaultModel = model
	}
}

// StartTestServer creates and starts a test server
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	}

	port, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	client := ollama.NewClient(cfg.ollamaURL,
		ollama.WithTimeout(10*time.Second),
		ollama.WithBackoff(10*time.Millisecond, 50*time.Millisecond),
	)
	providerReg := provider.NewRegistry(provider.NewOllamaBackend(client))

	bus := event.NewBus()
	mgr := manager.New(manager.Options{
		Registry: session.NewRegistry(session.DefaultShards),
		Backend:  providerReg,
		Pool:     worker.NewPool(cfg.poolLimit),
		Bus:      bus,
		Pipeline: cfg.pipeline,
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	serverConfig.DefaultModel = cfg.defaultModel

	srv := server.New(serverConfig, mgr)

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(context.Background())
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:      srv,
		Manager:     mgr,
		Bus:         bus,
		BaseURL:     baseURL,
		ProviderReg: providerReg,
		port:        port,
	}, nil
}

// Stop shuts down the test server and its pipelines.
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Manager != nil {
		if err := ts.Manager.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Bus != nil {
		return ts.Bus.Close()
	}
	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits until the router answers. /health may report 503
// while the backend is down, so any response counts.
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if _, err := client.Get(context.Background(), "/session"); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
