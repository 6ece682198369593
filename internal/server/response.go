package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashosive/agent-runtime/internal/inference"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
	"github.com/ashosive/agent-runtime/internal/worker"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeNoModel        = "NO_MODEL"
	ErrCodeUnknownModel   = "UNKNOWN_MODEL"
	ErrCodeUnsupported    = "UNSUPPORTED"
	ErrCodeProviderError  = "PROVIDER_ERROR"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeAPIError maps a runtime error onto a status code and error code.
func writeAPIError(w http.ResponseWriter, err error) {
	status, code, details := classify(err)
	writeErrorWithDetails(w, status, code, err.Error(), details)
}

func classify(err error) (int, string, map[string]any) {
	var (
		unknown *provider.UnknownModelError
		backend *provider.BackendError
	)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, nil
	case errors.Is(err, session.ErrInvalidState):
		var ise *session.InvalidStateError
		if errors.As(err, &ise) {
			return http.StatusConflict, ErrCodeInvalidState, map[string]any{"state": ise.State, "op": ise.Op}
		}
		return http.StatusConflict, ErrCodeInvalidState, nil
	case errors.Is(err, inference.ErrNoModel):
		return http.StatusUnprocessableEntity, ErrCodeNoModel, nil
	case errors.As(err, &unknown):
		var details map[string]any
		if unknown.Suggestion != "" {
			details = map[string]any{"suggestion": unknown.Suggestion}
		}
		return http.StatusUnprocessableEntity, ErrCodeUnknownModel, details
	case errors.Is(err, provider.ErrUnsupported):
		return http.StatusNotImplemented, ErrCodeUnsupported, nil
	case errors.As(err, &backend):
		details := map[string]any{"backend": backend.Backend, "kind": backend.Kind}
		if backend.StatusCode != 0 {
			details["status"] = backend.StatusCode
		}
		return http.StatusBadGateway, ErrCodeProviderError, details
	case errors.Is(err, worker.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, nil
	default:
		// Poisoned sessions land here as well.
		return http.StatusInternalServerError, ErrCodeInternalError, nil
	}
}
