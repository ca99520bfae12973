package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleDeviceHistory)
			})
		})

		r.Route("/tray", func(r chi.Router) {
			r.Get("/", s.handleTray)
			r.Get("/icon.png", s.handleTrayIcon)
			r.Get("/ws", s.handleWebSocket)
		})

		r.Post("/refresh", s.handleRefresh)

		r.Route("/config/notifications", func(r chi.Router) {
			r.Get("/", s.handleGetNotifications)
			r.Patch("/", s.handleUpdateNotifications)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"devices":        s.registry.Current().Len(),
		"ws_clients":     s.hub.ClientCount(),
	}
	if p := s.publisher.Latest(); p != nil {
		body["last_update"] = p.SnapshotAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}
