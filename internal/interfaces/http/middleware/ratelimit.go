package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/turtacn/ipscope/pkg/errors"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained per-client request rate.
	RequestsPerSecond float64

	// Burst is the number of requests a client may send above the sustained
	// rate before being limited.
	Burst int

	// KeyFunc extracts the limiting key from a request.  Nil defaults to
	// client IP extraction.
	KeyFunc func(r *http.Request) string

	// SkipPaths are paths that bypass limiting entirely.
	SkipPaths []string

	// IdleTTL is how long an idle client entry survives before the janitor
	// drops it.  Zero disables cleanup.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the limiter configuration used by the
// servers when the config file does not override it.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		KeyFunc:           ClientIPKeyFunc,
		SkipPaths:         []string{"/healthz", "/readyz", "/metrics"},
		IdleTTL:           5 * time.Minute,
	}
}

// ClientIPKeyFunc extracts the client IP as the limiting key, preferring
// proxy headers over the socket address.
func ClientIPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware enforces a per-client token bucket.  Every response
// carries X-RateLimit-Limit and X-RateLimit-Remaining; limited requests get
// 429 with a Retry-After hint.
type RateLimitMiddleware struct {
	config  RateLimitConfig
	keyFunc func(r *http.Request) string
	skip    map[string]bool

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewRateLimitMiddleware builds the middleware and starts the idle-entry
// janitor when IdleTTL is set.  Callers should Stop it on shutdown.
func NewRateLimitMiddleware(config RateLimitConfig) *RateLimitMiddleware {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Burst < 1 {
		config.Burst = int(math.Ceil(config.RequestsPerSecond))
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIPKeyFunc
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	m := &RateLimitMiddleware{
		config:      config,
		keyFunc:     keyFunc,
		skip:        skip,
		clients:     make(map[string]*clientLimiter),
		stopJanitor: make(chan struct{}),
	}
	if config.IdleTTL > 0 {
		go m.janitor()
	}
	return m
}

// limiterFor returns the bucket for key, creating it on first sight.
func (m *RateLimitMiddleware) limiterFor(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.clients[key]
	if !ok {
		entry = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), m.config.Burst),
		}
		m.clients[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// janitor drops entries that have been idle longer than IdleTTL so the map
// does not grow with one bucket per client forever.
func (m *RateLimitMiddleware) janitor() {
	ticker := time.NewTicker(m.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			threshold := time.Now().Add(-m.config.IdleTTL)
			m.mu.Lock()
			for key, entry := range m.clients {
				if entry.lastSeen.Before(threshold) {
					delete(m.clients, key)
				}
			}
			m.mu.Unlock()
		case <-m.stopJanitor:
			return
		}
	}
}

// Stop terminates the janitor goroutine.  Safe to call more than once.
func (m *RateLimitMiddleware) Stop() {
	m.stopOnce.Do(func() { close(m.stopJanitor) })
}

// ClientCount returns the number of tracked client buckets.
func (m *RateLimitMiddleware) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Handler wraps next with rate limiting.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		limiter := m.limiterFor(m.keyFunc(r))
		allowed := limiter.Allow()

		remaining := int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			retryAfter := int(math.Ceil(1 / m.config.RequestsPerSecond))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    apperrors.ErrCodeTooManyRequests.String(),
				"message": "rate limit exceeded, retry later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
