package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/domain/activity"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// maxBodyBytes caps how much of an upstream response is read; registries
// page their results, so anything larger is malformed or hostile.
const maxBodyBytes = 4 << 20 // 4 MiB

// Adapter is one upstream registry.  Lookup returns every attempt made for
// the candidate in attempt order; the last element is the accepted outcome.
// Only the pending-applications adapter ever returns more than one attempt
// (its fallback endpoint).  Lookup never returns an empty slice and never
// returns a Go error: failures are data inside the outcomes.
type Adapter interface {
	Kind() ipactivity.SourceKind
	Lookup(ctx context.Context, candidate string) []activity.Outcome
}

// BodyCache is an optional short-TTL cache of validated upstream response
// bodies, keyed by the full lookup URL.  Implementations are best-effort: a
// miss or a failed write falls through to a live call, never to a lookup
// failure.  Only bodies that passed the status and JSON checks are stored,
// so a cache hit resolves exactly like the live response it replays.
type BodyCache interface {
	GetBody(ctx context.Context, key string) ([]byte, bool)
	SetBody(ctx context.Context, key string, body []byte)
}

// Options configures one adapter.  Doer is typically a RateLimitedDoer
// shared across all three adapters.  A nil Cache disables response caching.
type Options struct {
	Endpoint   config.SourceEndpoint
	Doer       Doer
	Cache      BodyCache
	Timeout    time.Duration
	UserAgent  string
	SampleSize int
	Logger     logging.Logger
}

func (o *Options) applyFallbacks() {
	if o.Doer == nil {
		o.Doer = NewHTTPClient()
	}
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultSourceRequestTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = config.DefaultSourceUserAgent
	}
	if o.SampleSize <= 0 {
		o.SampleSize = config.DefaultSourceMaxSampleDocs
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
}

// extractFunc enriches a batch with source-specific material pulled from the
// probed items (patent IDs, pending samples).
type extractFunc func(items []json.RawMessage, batch *activity.Batch)

// sourceAdapter is the shared lookup engine behind all three registries;
// the concrete constructors differ only in probe lists and extraction.
type sourceAdapter struct {
	kind    ipactivity.SourceKind
	opts    Options
	shapes  []Shape
	extract extractFunc
	log     logging.Logger
}

func newSourceAdapter(kind ipactivity.SourceKind, opts Options, shapes []Shape, extract extractFunc) *sourceAdapter {
	opts.applyFallbacks()
	return &sourceAdapter{
		kind:    kind,
		opts:    opts,
		shapes:  shapes,
		extract: extract,
		log:     opts.Logger.Named(string(kind)),
	}
}

func (s *sourceAdapter) Kind() ipactivity.SourceKind { return s.kind }

// Lookup issues the primary attempt and, only when it fails outright, the
// fallback attempt.  An empty success never triggers fallback: "no matches"
// is an answer.
func (s *sourceAdapter) Lookup(ctx context.Context, candidate string) []activity.Outcome {
	attempts := []activity.Outcome{s.fetch(ctx, candidate, s.opts.Endpoint.Path)}

	last := attempts[len(attempts)-1]
	if !last.OK() && s.opts.Endpoint.FallbackPath != "" {
		s.log.Debug("primary attempt failed, trying fallback",
			logging.String("candidate", candidate),
			logging.String("reason", last.Err.Reason))
		attempts = append(attempts, s.fetch(ctx, candidate, s.opts.Endpoint.FallbackPath))
	}
	return attempts
}

// buildURL assembles the lookup URL for one candidate and path.
func (s *sourceAdapter) buildURL(candidate, path string) string {
	q := url.Values{}
	q.Set(s.opts.Endpoint.QueryParam, candidate)
	return s.opts.Endpoint.BaseURL + path + "?" + q.Encode()
}

// fetch performs a single attempt and resolves it into an Outcome.  A cache
// hit replays the stored body through the same resolution path as a live
// response.
func (s *sourceAdapter) fetch(ctx context.Context, candidate, path string) activity.Outcome {
	target := s.buildURL(candidate, path)

	if s.opts.Cache != nil {
		if body, ok := s.opts.Cache.GetBody(ctx, target); ok {
			s.log.Debug("lookup served from cache", logging.String("candidate", candidate))
			return s.resolve(candidate, target, body)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return activity.Failure(s.kind, candidate, target,
			&activity.FetchError{Reason: activity.ReasonConnection})
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.opts.Doer.Do(req)
	if err != nil {
		return activity.Failure(s.kind, candidate, target, classifyTransportError(reqCtx, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return activity.Failure(s.kind, candidate, target, classifyTransportError(reqCtx, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return activity.Failure(s.kind, candidate, target,
			&activity.FetchError{Reason: activity.ReasonHTTPStatus, Status: resp.StatusCode})
	}

	if !gjson.ValidBytes(body) {
		return activity.Failure(s.kind, candidate, target,
			&activity.FetchError{Reason: activity.ReasonInvalidResponse})
	}

	if s.opts.Cache != nil {
		s.opts.Cache.SetBody(ctx, target, body)
	}
	return s.resolve(candidate, target, body)
}

// resolve probes a validated body into the final outcome.
func (s *sourceAdapter) resolve(candidate, target string, body []byte) activity.Outcome {
	items, _, ok := ProbeItems(body, s.shapes)
	if !ok {
		// Probe lists end in Empty(), so this only fires on a malformed list.
		return activity.Failure(s.kind, candidate, target,
			&activity.FetchError{Reason: activity.ReasonInvalidResponse})
	}

	batch := &activity.Batch{Count: ProbeCount(body, len(items))}
	if s.extract != nil {
		s.extract(items, batch)
	}

	s.log.Debug("lookup resolved",
		logging.String("candidate", candidate),
		logging.Int("count", batch.Count))
	return activity.Success(s.kind, candidate, target, batch)
}

// classifyTransportError maps a transport-level failure onto the closed
// reason set.  Deadline and cancellation collapse to "timeout": the only
// cancellation source on this path is the aggregation deadline.
func classifyTransportError(ctx context.Context, err error) *activity.FetchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		ctx.Err() != nil:
		return &activity.FetchError{Reason: activity.ReasonTimeout}
	default:
		return &activity.FetchError{Reason: activity.ReasonConnection}
	}
}
