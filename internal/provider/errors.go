package provider

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ashosive/agent-runtime/internal/ollama"
)

// ErrorKind classifies backend failures.
type ErrorKind string

const (
	// KindNetwork covers transport failures and unclassified upstream errors.
	KindNetwork ErrorKind = "network"
	// KindStatus is a non-success HTTP status from the backend.
	KindStatus ErrorKind = "status"
	// KindDecode is a response body that could not be decoded.
	KindDecode ErrorKind = "decode"
)

// BackendError is the error type returned by every Backend operation that
// reached (or tried to reach) the model server.
type BackendError struct {
	Backend    string
	Op         string
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body != "" {
			return fmt.Sprintf("%s %s: status %d: %s", e.Backend, e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s %s: status %d", e.Backend, e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Kind, e.Err)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendError reports whether err wraps a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// wrapError classifies err into a *BackendError. nil stays nil and errors
// already classified are returned unchanged.
func wrapError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}

	out := &BackendError{Backend: backend, Op: op, Kind: KindNetwork, Err: err}

	var statusErr *ollama.StatusError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &statusErr):
		out.Kind = KindStatus
		out.StatusCode = statusErr.StatusCode
		out.Body = statusErr.Body
	case errors.Is(err, ollama.ErrDecode), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		out.Kind = KindDecode
	}
	return out
}
