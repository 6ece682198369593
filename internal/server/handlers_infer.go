package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashosive/agent-runtime/internal/inference"
	"github.com/ashosive/agent-runtime/internal/provider"
)

// InputRequest is the body of POST /session/{sessionID}/input.
type InputRequest struct {
	Text string `json:"text"`
}

// InputResponse returns the prompt a session will send next.
type InputResponse struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// InferRequest is the body of POST /session/{sessionID}/infer.
//
// With Input set the text is recorded as the user turn first. With only
// Prompt set it is sent verbatim. With neither the session's current prompt
// is used.
type InferRequest struct {
	Input  *string `json:"input,omitempty"`
	Prompt string  `json:"prompt,omitempty"`
	Stream bool    `json:"stream,omitempty"`
}

// InferResponse is the non-streamed result of an inference call.
type InferResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// applyInput handles POST /session/{sessionID}/input
func (s *Server) applyInput(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	prompt, err := s.manager.Engine().ApplyUserInput(sessionID, req.Text)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InputResponse{SessionID: sessionID, Prompt: prompt})
}

// infer handles POST /session/{sessionID}/infer
func (s *Server) infer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req InferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if req.Stream {
		s.inferStream(w, r, sessionID, req)
		return
	}

	engine := s.manager.Engine()
	var (
		out string
		err error
	)
	switch {
	case req.Input != nil:
		out, err = engine.InferOnceWithInput(r.Context(), sessionID, *req.Input)
	default:
		prompt := req.Prompt
		if prompt == "" {
			prompt, err = inference.BuildPrompt(s.manager.Registry(), sessionID)
			if err != nil {
				writeAPIError(w, err)
				return
			}
		}
		out, err = engine.InferOnce(r.Context(), sessionID, prompt)
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, InferResponse{SessionID: sessionID, Response: out})
}

// inferStream answers an infer request as server-sent events: one "token"
// event per fragment, then "done" or "error".
func (s *Server) inferStream(w http.ResponseWriter, r *http.Request, sessionID string, req InferRequest) {
	engine := s.manager.Engine()

	prompt := req.Prompt
	var err error
	if req.Input == nil && prompt == "" {
		prompt, err = inference.BuildPrompt(s.manager.Registry(), sessionID)
		if err != nil {
			writeAPIError(w, err)
			return
		}
	}

	// Errors before the first token are still reported as plain JSON.
	var stream *provider.TokenStream
	if req.Input != nil {
		stream, err = engine.InferStreamWithInput(r.Context(), sessionID, *req.Input)
	} else {
		stream, err = engine.InferStream(r.Context(), sessionID, prompt)
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}
	defer stream.Close()

	sse, err := startSSE(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	count := 0
	for {
		tok, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_, code, _ := classify(err)
			sse.writeEvent("error", ErrorDetail{Code: code, Message: err.Error()})
			return
		}
		if err := sse.writeEvent("token", map[string]string{"token": tok}); err != nil {
			return
		}
		count++
	}
	sse.writeEvent("done", map[string]any{"session_id": sessionID, "tokens": count})
}
