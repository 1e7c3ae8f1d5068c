package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/prometheus"
)

// MetricsMiddleware records one observation per served request and tracks
// the in-flight gauge.  The path label uses the matched chi route pattern,
// not the raw URL, so series cardinality stays bounded.
type MetricsMiddleware struct {
	metrics *prometheus.Metrics
}

// NewMetricsMiddleware builds the middleware.  A nil metrics bundle yields a
// pass-through handler.
func NewMetricsMiddleware(metrics *prometheus.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: metrics}
}

// Handler wraps next with request instrumentation.
func (m *MetricsMiddleware) Handler(next http.Handler) http.Handler {
	if m.metrics == nil {
		return next
	}
	inFlight := m.metrics.HTTPRequestsInFlight.WithLabelValues()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inFlight.Inc()
		defer inFlight.Dec()

		wrapped := newWrappedResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		// The route pattern is only known after routing has happened.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.metrics.ObserveHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
	})
}
