package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// Bearer-token auth guards the relay-mutating routes only; reads, the
// event stream, and health endpoints stay open so LAN dashboards work
// without credentials.
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
		// System endpoints (no auth required)
		r.Get("/system/health", s.handleSystemHealth)
		r.Get("/system/info", s.handleSystemInfo)
		r.Get("/system/metrics", s.handleSystemMetrics)

		// Relay endpoints
		r.Route("/relays", func(r chi.Router) {
			r.Get("/", s.handleListRelays)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRelay)

				// Mutating routes
				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)

					r.Put("/power", s.handlePower)
					r.Post("/toggle", s.handleToggle)
					r.Post("/oscillate", s.handleOscillate)
					r.Post("/stop", s.handleStopRelay)
				})
			})
		})

		// Oscillation session endpoints
		r.Route("/oscillations", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.With(s.authMiddleware).Delete("/{id}", s.handleStopSession)
		})

		// WebSocket event stream (read-only; commands go through REST or MQTT)
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath returns the configured WebSocket path, defaulting to /ws.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
