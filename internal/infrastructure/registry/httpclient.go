package registry

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Doer issues one HTTP request.  *http.Client satisfies it; tests substitute
// function doers, and RateLimitedDoer wraps any Doer.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do implements Doer.
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// RateLimitedDoer throttles outbound requests with a shared token bucket so
// a wide aggregation fan-out cannot hammer public registries.  Wait blocks
// until a token is available or the request context expires, so the overall
// aggregation deadline still bounds every attempt.
type RateLimitedDoer struct {
	inner   Doer
	limiter *rate.Limiter
}

// NewRateLimitedDoer wraps inner with a limiter allowing rps requests per
// second and bursts of burst.  Non-positive values fall back to a permissive
// limiter rather than blocking forever.
func NewRateLimitedDoer(inner Doer, rps float64, burst int) *RateLimitedDoer {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedDoer{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Do waits for a token, then delegates to the wrapped Doer.  A context
// cancelled or expired while waiting is returned as the error, which the
// adapter maps to a timeout outcome.
func (d *RateLimitedDoer) Do(req *http.Request) (*http.Response, error) {
	if err := d.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return d.inner.Do(req)
}

// NewHTTPClient returns the http.Client shared by all adapters.  Per-attempt
// deadlines come from request contexts, so the client itself carries no
// timeout; transport limits keep idle upstream connections bounded.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
