package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
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
		// Liveness probe and public reads (no auth required)
		r.Get("/", s.handleRoot)
		r.Get("/info", s.handleInfo)
		r.Get("/config/frontend", s.handleFrontendConfig)
		r.Get("/health", s.handleHealth)

		// Single-device snapshot doubles as the device WebSocket
		// session endpoint; the session authenticates before upgrade.
		r.Get("/device/{key}/info", s.handleDeviceGet)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Patch("/device/{key}/info", s.handleDeviceMerge)
			r.Put("/device/{key}/info", s.handleDeviceReplace)
			r.Delete("/device/{key}/info", s.handleDeviceDelete)
			r.Get("/device/{key}/history", s.handleDeviceHistory)
		})
	})

	return r
}

// handleRoot is the liveness probe.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte("presence-core is running\n"))
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleInfo returns the aggregate presence snapshot. A WebSocket
// upgrade on this path becomes the frontend subscription feed.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleInfoFeed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.currentInfo())
}

// handleFrontendConfig serves the display configuration verbatim.
func (s *Server) handleFrontendConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.frontend)
}
