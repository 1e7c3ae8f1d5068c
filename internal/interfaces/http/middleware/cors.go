package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to make cross-origin requests.
	// "*" allows all origins; entries like "*.example.com" match subdomains
	// when AllowWildcard is set.
	AllowedOrigins []string

	// AllowedMethods lists HTTP methods allowed for cross-origin requests.
	AllowedMethods []string

	// AllowedHeaders lists request headers allowed for cross-origin requests.
	AllowedHeaders []string

	// ExposedHeaders lists response headers exposed to the client.
	ExposedHeaders []string

	// AllowCredentials indicates whether cookies and auth headers are allowed.
	AllowCredentials bool

	// MaxAge is how long, in seconds, preflight results may be cached.
	MaxAge int

	// AllowWildcard enables subdomain wildcard matching (*.example.com).
	AllowWildcard bool
}

// DefaultCORSConfig returns a permissive read-only default: all origins, the
// methods the API actually serves, and no credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-Id",
		},
		ExposedHeaders: []string{
			"X-Request-Id",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
		},
		AllowCredentials: false,
		MaxAge:           86400,
		AllowWildcard:    false,
	}
}

// CORSMiddleware handles cross-origin request headers and preflights.
type CORSMiddleware struct {
	config CORSConfig

	allowedMethods string
	allowedHeaders string
	exposedHeaders string
	maxAge         string

	originSet        map[string]bool
	wildcardPatterns []string
	allowAll         bool
}

// NewCORSMiddleware precomputes the header values and origin matcher.
func NewCORSMiddleware(config CORSConfig) *CORSMiddleware {
	m := &CORSMiddleware{
		config:         config,
		allowedMethods: strings.Join(config.AllowedMethods, ", "),
		allowedHeaders: strings.Join(config.AllowedHeaders, ", "),
		exposedHeaders: strings.Join(config.ExposedHeaders, ", "),
		maxAge:         strconv.Itoa(config.MaxAge),
		originSet:      make(map[string]bool, len(config.AllowedOrigins)),
	}
	for _, origin := range config.AllowedOrigins {
		switch {
		case origin == "*":
			m.allowAll = true
		case config.AllowWildcard && strings.HasPrefix(origin, "*."):
			m.wildcardPatterns = append(m.wildcardPatterns, origin[1:]) // ".example.com"
		default:
			m.originSet[strings.ToLower(origin)] = true
		}
	}
	return m
}

func (m *CORSMiddleware) originAllowed(origin string) bool {
	if m.allowAll {
		return true
	}
	lower := strings.ToLower(origin)
	if m.originSet[lower] {
		return true
	}
	for _, pattern := range m.wildcardPatterns {
		if strings.HasSuffix(lower, pattern) {
			return true
		}
	}
	return false
}

// Handler wraps next with CORS processing.  Requests without an Origin
// header, and requests from disallowed origins, pass through untouched; the
// browser enforces the block client-side.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !m.originAllowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Method")
		w.Header().Add("Vary", "Access-Control-Request-Headers")

		if m.allowAll && !m.config.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		if m.config.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", m.allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", m.allowedHeaders)
			if m.config.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", m.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if m.exposedHeaders != "" {
			w.Header().Set("Access-Control-Expose-Headers", m.exposedHeaders)
		}
		next.ServeHTTP(w, r)
	})
}
