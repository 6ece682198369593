// Package sessions provides an MCP server exposing agent sessions as tools.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ashosive/agent-runtime/internal/manager"
	"github.com/ashosive/agent-runtime/internal/session"
)

// Version is reported in the MCP initialize handshake.
const Version = "1.0.0"

type handlers struct {
	mgr *manager.Manager
}

// NewServer creates an MCP server whose tools drive mgr.
func NewServer(mgr *manager.Manager) *server.MCPServer {
	s := server.NewMCPServer(
		"agentd",
		Version,
		server.WithToolCapabilities(true),
	)
	h := &handlers{mgr: mgr}

	s.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Creates a pending agent session and returns its id"),
		mcp.WithString("system_prompt", mcp.Description("System prompt; a generic assistant prompt when omitted")),
		mcp.WithString("user_prompt", mcp.Description("Initial user turn")),
		mcp.WithNumber("max_tokens", mcp.Description("Token limit recorded on the session")),
		mcp.WithString("model", mcp.Description("Backend model to set right away")),
	), h.createSession)

	s.AddTool(mcp.NewTool("set_model",
		mcp.WithDescription("Sets the backend model of a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("model", mcp.Required(), mcp.Description("Model name, e.g. llama3.2:latest")),
	), h.setModel)

	s.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Starts a session and launches its background inference"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), h.startSession)

	s.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("Ends a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), h.endSession)

	s.AddTool(mcp.NewTool("send_input",
		mcp.WithDescription("Records a user turn on an active session and returns the model's reply"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("User input")),
	), h.sendInput)

	s.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Returns a snapshot of one session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), h.getSession)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("Lists all registered sessions"),
	), h.listSessions)

	return s
}

// jsonResult encodes v as the tool's text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *handlers) createSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req session.CreateRequest
	args := request.GetArguments()
	if _, ok := args["system_prompt"]; ok {
		v := request.GetString("system_prompt", "")
		req.SystemPrompt = &v
	}
	if _, ok := args["user_prompt"]; ok {
		v := request.GetString("user_prompt", "")
		req.UserPromptSnapshot = &v
	}
	if _, ok := args["max_tokens"]; ok {
		n := request.GetFloat("max_tokens", 0)
		if n < 0 {
			return mcp.NewToolResultError("max_tokens must not be negative"), nil
		}
		v := uint32(n)
		req.MaxTokens = &v
	}

	_, receipt, err := h.mgr.CreateSessionWithModel(req, request.GetString("model", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(receipt)
}

func (h *handlers) setModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model, err := request.RequireString("model")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.mgr.SetSessionModel(id, model); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("model of %s set to %s", id, model)), nil
}

func (h *handlers) startSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	receipt, err := h.mgr.StartSession(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(receipt)
}

func (h *handlers) endSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	receipt, err := h.mgr.EndSession(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(receipt)
}

func (h *handlers) sendInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := h.mgr.Engine().InferOnceWithInput(ctx, id, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (h *handlers) getSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := h.mgr.Snapshot(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (h *handlers) listSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views := make([]session.View, 0, h.mgr.CountSessions())
	for _, id := range h.mgr.ListSessionIDs() {
		if v, err := h.mgr.Snapshot(id); err == nil {
			views = append(views, v)
		}
	}
	return jsonResult(views)
}
