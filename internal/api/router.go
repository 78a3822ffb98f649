package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shading/internal/auth"
)

// defaultMetricsPath is where Prometheus scrapes when no path is configured.
const defaultMetricsPath = "/metrics"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition (no auth, scraped on the local network)
	if s.stats != nil && s.metricsCfg.Enabled {
		r.Handle(s.metricsPath(), s.stats.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.With(s.instrument("/health")).Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/blinds", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermBlindRead), s.instrument("/blinds")).
					Get("/", s.handleListBlinds)

				r.Route("/{name}", func(r chi.Router) {
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermBlindRead))
						r.With(s.instrument("/blinds/{name}")).Get("/", s.handleGetBlind)
						r.With(s.instrument("/blinds/{name}/config")).Get("/config", s.handleGetBlindConfig)
					})
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermBlindOperate))
						r.With(s.instrument("/blinds/{name}/events")).Post("/events", s.handlePostEvent)
						r.With(s.instrument("/blinds/{name}/override")).Put("/override", s.handleSetOverride)
						r.With(s.instrument("/blinds/{name}/override")).Delete("/override", s.handleResetOverride)
						r.With(s.instrument("/blinds/{name}/mode")).Put("/mode", s.handleSetMode)
					})
				})
			})

			r.Route("/journal", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermJournalRead), s.instrument("/journal")).
					Get("/", s.handleListJournal)
				r.With(s.requirePermission(auth.PermSystemAdmin), s.instrument("/journal/prune")).
					Post("/prune", s.handlePruneJournal)
			})

			r.Route("/astro", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermBlindRead))
				r.With(s.instrument("/astro/sun")).Get("/sun", s.handleSun)
				r.With(s.instrument("/astro/times")).Get("/times", s.handleSunTimes)
				r.With(s.instrument("/astro/moon")).Get("/moon", s.handleMoon)
			})

			r.With(s.requirePermission(auth.PermSystemAdmin), s.instrument("/system")).
				Get("/system", s.handleSystemStatus)
		})
	})

	return r
}

// instrument records request count and latency under a fixed route label.
func (s *Server) instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return s.stats.WrapHandler(route, next)
	}
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	mqttConnected := s.mqtt != nil && s.mqtt.IsConnected()
	if s.mqtt != nil && !mqttConnected {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"mqtt_connected": mqttConnected,
		"blinds":         len(s.shading.Blinds()),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// metricsPath is the configured Prometheus path.
func (s *Server) metricsPath() string {
	if s.metricsCfg.Path == "" {
		return defaultMetricsPath
	}
	return s.metricsCfg.Path
}
