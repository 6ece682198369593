package sessions

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashosive/agent-runtime/internal/session"
)

// TestServer_MCPClient drives the tools through the modelcontextprotocol
// go-sdk client over an in-process stdio transport.
func TestServer_MCPClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mgr := newTestManager(t)
	stdioServer := server.NewStdioServer(NewServer(mgr))

	// serverReader <- clientWriter (client sends to server)
	// clientReader <- serverWriter (server sends to client)
	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- stdioServer.Listen(ctx, serverReader, serverWriter)
	}()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	transport := &sdkmcp.IOTransport{
		Reader: clientReader,
		Writer: clientWriter,
	}

	cs, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err, "failed to connect client to server")
	defer cs.Close()

	listResult, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(listResult.Tools))
	for _, tool := range listResult.Tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, "create_session")
	assert.Contains(t, names, "send_input")

	callText := func(name string, args map[string]any) string {
		t.Helper()
		result, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
		require.NoError(t, err, "failed to call %s", name)
		require.NotEmpty(t, result.Content)
		content, ok := result.Content[0].(*sdkmcp.TextContent)
		require.True(t, ok, "content should be TextContent")
		require.False(t, result.IsError, content.Text)
		return content.Text
	}

	var receipt session.Receipt
	require.NoError(t, json.Unmarshal([]byte(callText("create_session", map[string]any{
		"system_prompt": "sys",
		"model":         "llama3.2-vision:latest",
	})), &receipt))

	callText("start_session", map[string]any{"session_id": receipt.SessionID})
	reply := callText("send_input", map[string]any{"session_id": receipt.SessionID, "text": "what is ai agent?"})
	assert.Equal(t, "llama3.2-vision:latest: sys\n\nUser: what is ai agent?", reply)

	cancel()
	clientWriter.Close()
	serverWriter.Close()
}
