package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Put("/model", s.setSessionModel)

			// Lifecycle
			r.Post("/start", s.startSession)
			r.Post("/pause", s.pauseSession)
			r.Post("/suspend", s.suspendSession)
			r.Post("/end", s.endSession)

			// Inference
			r.Post("/input", s.applyInput)
			r.Post("/infer", s.infer)
			r.Get("/stream", s.sessionStream)
		})
	})

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)

	// Backend
	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.listModels)
		r.Post("/pull", s.pullModel)
	})
	r.Get("/health", s.health)
}
