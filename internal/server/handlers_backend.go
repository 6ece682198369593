package server

import (
	"encoding/json"
	"net/http"

	"github.com/ashosive/agent-runtime/internal/provider"
)

// PullRequest is the body of POST /models/pull.
type PullRequest struct {
	Name string `json:"name"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Healthy  bool             `json:"healthy"`
	Backend  string           `json:"backend"`
	Error    string           `json:"error,omitempty"`
	Sessions int              `json:"sessions"`
	Pool     map[string]int64 `json:"pool"`
}

// listModels handles GET /models
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.backend.ListModels(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if models == nil {
		models = []provider.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, models)
}

// pullModel handles POST /models/pull. It blocks until the pull finishes.
func (s *Server) pullModel(w http.ResponseWriter, r *http.Request) {
	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name is required")
		return
	}

	if err := s.backend.PullModel(r.Context(), req.Name); err != nil {
		writeAPIError(w, err)
		return
	}
	writeSuccess(w)
}

// health handles GET /health. The status is 503 when the backend is down.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	healthy, err := s.backend.Health(r.Context())
	resp := HealthResponse{
		Healthy:  healthy,
		Backend:  s.backend.Name(),
		Sessions: s.manager.CountSessions(),
		Pool:     s.manager.Pool().Stats(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
