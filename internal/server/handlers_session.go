package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
)

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	session.CreateRequest
	// Model is set on the session right after creation. The server's default
	// model is used when empty.
	Model string `json:"model,omitempty"`
}

// CreateSessionResponse is returned by POST /session.
type CreateSessionResponse struct {
	session.Receipt
	Session session.View `json:"session"`
}

// SetModelRequest is the body of PUT /session/{sessionID}/model.
type SetModelRequest struct {
	Model string `json:"model"`
	// Verify checks the model against the backend's catalogue first.
	Verify bool `json:"verify,omitempty"`
}

// decodeBody decodes an optional JSON body into v. An empty body is accepted.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.manager.ListSessionIDs()

	// Ensure we return an empty array [] instead of null
	sessions := make([]session.View, 0, len(ids))
	for _, id := range ids {
		v, err := s.manager.Snapshot(id)
		if err != nil {
			// Removed or poisoned between listing and reading.
			continue
		}
		sessions = append(sessions, v)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	model := req.Model
	if model == "" {
		model = s.config.DefaultModel
	}
	_, receipt, err := s.manager.CreateSessionWithModel(req.CreateRequest, model)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	view, err := s.manager.Snapshot(receipt.SessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{Receipt: receipt, Session: view})
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// deleteSession handles DELETE /session/{sessionID}
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, ok := s.manager.RemoveSession(sessionID); !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeSuccess(w)
}

// setSessionModel handles PUT /session/{sessionID}/model
func (s *Server) setSessionModel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SetModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "model is required")
		return
	}

	if !s.manager.ExistsSession(sessionID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	if req.Verify {
		if err := provider.CheckModel(r.Context(), s.backend, req.Model); err != nil {
			writeAPIError(w, err)
			return
		}
	}

	if err := s.manager.SetSessionModel(sessionID, req.Model); err != nil {
		writeAPIError(w, err)
		return
	}

	view, err := s.manager.Snapshot(sessionID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// startSession handles POST /session/{sessionID}/start
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.manager.StartSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// pauseSession handles POST /session/{sessionID}/pause
func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.manager.PauseSession)
}

// suspendSession handles POST /session/{sessionID}/suspend
func (s *Server) suspendSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.manager.SuspendSession)
}

// endSession handles POST /session/{sessionID}/end
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.manager.EndSession)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, apply func(string) (session.TransitionReceipt, error)) {
	receipt, err := apply(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
