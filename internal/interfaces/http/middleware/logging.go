// Package middleware provides the HTTP middleware chain: CORS, request
// logging, rate limiting and request metrics.
package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
)

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are paths that should not be logged (probes, scrapes).
	SkipPaths []string

	// SlowThreshold is the duration above which a request is considered slow
	// and logged at Warn level.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the logging configuration used by the servers.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// wrappedResponseWriter captures the status code and bytes written.
type wrappedResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newWrappedResponseWriter(w http.ResponseWriter) *wrappedResponseWriter {
	return &wrappedResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK, // default if WriteHeader is never called
	}
}

func (w *wrappedResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *wrappedResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Hijack lets wrapped handlers upgrade the connection.
func (w *wrappedResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

// Flush supports streaming responses.
func (w *wrappedResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs one line per completed request with method, path,
// status, duration and size.  Status and latency pick the level: 5xx logs at
// Error, 4xx and slow requests at Warn, everything else at Info.
type LoggingMiddleware struct {
	logger logging.Logger
	config LoggingConfig
	skip   map[string]bool
}

// NewLoggingMiddleware builds the middleware around the given logger.
func NewLoggingMiddleware(logger logging.Logger, config LoggingConfig) *LoggingMiddleware {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	return &LoggingMiddleware{
		logger: logger.Named("http"),
		config: config,
		skip:   skip,
	}
}

// Handler wraps next with request logging.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}

		wrapped := newWrappedResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", path),
			logging.Int("status", wrapped.statusCode),
			logging.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
			logging.Int64("bytes", wrapped.bytesWritten),
			logging.String("remote_addr", r.RemoteAddr),
		}
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			fields = append(fields, logging.String("request_id", reqID))
		}
		if ua := r.UserAgent(); ua != "" {
			fields = append(fields, logging.String("user_agent", ua))
		}

		switch {
		case wrapped.statusCode >= 500:
			m.logger.Error("request completed", fields...)
		case wrapped.statusCode >= 400:
			m.logger.Warn("request completed", fields...)
		case m.config.SlowThreshold > 0 && duration >= m.config.SlowThreshold:
			m.logger.Warn("request completed slowly", fields...)
		default:
			m.logger.Info("request completed", fields...)
		}
	})
}
