package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/plantpot-core/internal/dashboard"
)

// healthCheckTimeout bounds the dependency checks behind GET /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	// Browser dashboard
	r.Handle("/dashboard/*", http.StripPrefix("/dashboard", dashboard.Handler(s.cfg.DashboardDir)))
	r.Handle("/dashboard", http.RedirectHandler("/dashboard/", http.StatusMovedPermanently))
	r.Handle("/", http.RedirectHandler("/dashboard/", http.StatusFound))

	// Prometheus exposition
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/readings", s.readingRoutes)

		r.Route("/connection", func(r chi.Router) {
			r.Get("/", s.handleGetConnection)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Get("/config", s.handleGetConnectionConfig)
			r.Put("/config", s.handlePutConnectionConfig)
		})

		// The dashboard expects the default /ws.
		r.Get(s.hub.cfg.Path, s.handleWebSocket)
	})

	// Legacy prefix used by existing device firmware.
	r.Route("/api/plants", s.readingRoutes)

	return r
}

// readingRoutes mounts the stored-reading endpoints.
func (s *Server) readingRoutes(r chi.Router) {
	r.Post("/", s.handleCreateReading)
	r.Get("/latest", s.handleLatestReading)
	r.Get("/history", s.handleReadingHistory)
	r.Get("/series", s.handleReadingSeries)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Connection string            `json:"connection"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports server health and the health of each registered
// dependency. Any failing dependency makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Connection: string(s.controller.Status().State),
	}

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	if len(names) > 0 {
		resp.Components = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := s.health[name].HealthCheck(ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	writeJSON(w, status, resp)
}
