package commands

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ashosive/agent-runtime/pkg/mcpserver/sessions"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve session tools over MCP stdio",
	Long: `Expose session management as MCP tools on stdin and stdout, so an MCP
client can create, start, prompt and end sessions.

Logs are written to stderr; stdout carries the protocol.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, err := newBackend(ctx, appConfig)
	if err != nil {
		return err
	}
	mgr := newManager(appConfig, backend)
	defer mgr.Shutdown(context.Background())

	return server.ServeStdio(sessions.NewServer(mgr))
}
