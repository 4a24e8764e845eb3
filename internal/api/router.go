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

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/events", s.handleListDeviceEvents)
				r.Get("/history", s.handleGetDeviceHistory)
			})
		})

		r.Post("/locks/{id}/command", s.handleLockCommand)
		r.Post("/lighting/{id}/command", s.handleLightingCommand)
		r.Route("/alarms/{id}", func(r chi.Router) {
			r.Post("/test", s.handleAlarmTest)
			r.Post("/sensitivity", s.handleAlarmSensitivity)
			r.Post("/acknowledge", s.handleAlarmAcknowledge)
		})

		// Subscribers connect here; the event filter comes from ?events=.
		r.Get("/ws", s.handleWebSocket)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)

			r.Get("/pin", s.handleGetPIN)
			r.Put("/pin", s.handleRotatePIN)

			r.Route("/principals", func(r chi.Router) {
				r.Get("/", s.handleListPrincipals)
				r.Post("/", s.handleCreatePrincipal)
				r.Delete("/{id}", s.handleDeletePrincipal)
			})

			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.bus != nil {
		status["bus_connected"] = s.bus.IsConnected()
	}
	if s.ingest != nil {
		status["ingest_running"] = s.ingest.Running()
	}
	writeJSON(w, http.StatusOK, status)
}
