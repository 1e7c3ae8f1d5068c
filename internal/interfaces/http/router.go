// Package http assembles the chi route tree and the HTTP server around the
// aggregation and recount handlers.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/ipscope/internal/interfaces/http/handlers"
	"github.com/turtacn/ipscope/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies required
// to construct the complete route tree.
type RouterConfig struct {
	// Handlers
	IPData   *handlers.IPDataHandler
	Recounts *handlers.RecountHandler
	Health   *handlers.HealthHandler

	// Middleware; nil entries are skipped
	CORS      *middleware.CORSMiddleware
	Logging   *middleware.LoggingMiddleware
	Metrics   *middleware.MetricsMiddleware
	RateLimit *middleware.RateLimitMiddleware

	// MetricsHandler serves GET /metrics, typically the collector's scrape
	// handler.
	MetricsHandler http.Handler
}

// NewRouter constructs the route tree: global middleware, public probes, the
// synchronous lookup endpoint and the async recount group.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if cfg.CORS != nil {
		r.Use(cfg.CORS.Handler)
	}
	if cfg.Logging != nil {
		r.Use(cfg.Logging.Handler)
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}
	if cfg.RateLimit != nil {
		r.Use(cfg.RateLimit.Handler)
	}

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Liveness)
		r.Get("/readyz", cfg.Health.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.IPData != nil {
		r.Get("/api/ipdata", cfg.IPData.Lookup)
	}

	r.Route("/api/v1", func(api chi.Router) {
		registerRecountRoutes(api, cfg.Recounts)
	})

	return r
}

// registerRecountRoutes mounts the async recount endpoints under /recounts.
func registerRecountRoutes(r chi.Router, h *handlers.RecountHandler) {
	if h == nil {
		return
	}
	r.Route("/recounts", func(rr chi.Router) {
		rr.Post("/", h.Create)
		rr.Get("/{requestID}", h.Get)
	})
}
