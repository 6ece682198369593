// Package server provides the HTTP API of the agent runtime.
//
// The server is a thin chi router over a manager.Manager. Handlers decode a
// request, call one manager or engine operation, and encode the result or
// map the error with writeAPIError.
//
// # API Endpoints
//
//	POST   /session                     create (optional "model" sets it right away)
//	GET    /session                     list snapshots, oldest first
//	GET    /session/{id}                snapshot
//	DELETE /session/{id}                remove from the registry
//	PUT    /session/{id}/model          set model ({"model", "verify"})
//	POST   /session/{id}/start          start; launches the inference pipeline unless already Active
//	POST   /session/{id}/pause          Active -> Paused
//	POST   /session/{id}/suspend        Active|Paused -> Suspended
//	POST   /session/{id}/end            -> Ended
//	POST   /session/{id}/input          record a user turn
//	POST   /session/{id}/infer          one inference call ({"input"|"prompt", "stream"})
//	GET    /session/{id}/stream         SSE of the session's events until it ends
//	GET    /event                       SSE of every event (?sessionID= filters)
//	GET    /models                      backend catalogue
//	POST   /models/pull                 pull a model (Ollama only)
//	GET    /health                      backend health, session count, pool stats
//
// # Errors
//
// Errors use a common envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "details": {...}}}
//
// Status codes:
//
//   - 400 INVALID_REQUEST: malformed body
//   - 404 NOT_FOUND: unknown session id
//   - 409 INVALID_STATE: operation illegal in the session's state
//   - 422 NO_MODEL, UNKNOWN_MODEL: missing or unlisted model
//   - 501 UNSUPPORTED: backend cannot perform the operation
//   - 502 PROVIDER_ERROR: the model server failed
//   - 503 UNAVAILABLE: runtime shutting down
//   - 500 INTERNAL_ERROR: anything else, including poisoned sessions
//
// # Streaming
//
// Streaming endpoints use Server-Sent Events with a heartbeat comment every
// SSEHeartbeatInterval. /event relays the watermill topic the event bus
// mirrors to; /session/{id}/stream subscribes to the bus directly and keeps
// each event's Go type as "properties".
package server
