package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Login is the only other public endpoint
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			// WS ticket requires authentication - user must be logged in
			// to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints. Mutations are admin-only; reads are open
			// to any authenticated user.
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.With(s.requireAdmin).Post("/", s.handleCreateDevice)
				r.Get("/stats", s.handleDeviceStats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.With(s.requireAdmin).Patch("/", s.handleUpdateDevice)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteDevice)
					r.Get("/state", s.handleGetDeviceState)
					r.Get("/sessions", s.handleListDeviceSessions)
				})
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
