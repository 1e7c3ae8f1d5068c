// Package integration exercises the assembled service across package
// boundaries: fake upstream registries behind httptest, the real adapter,
// aggregation and recount stack, and the real chi route tree.  Redis-backed
// tests require Docker and live behind the "integration" build tag;
// everything else runs with plain go test.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/ipscope/internal/application/aggregation"
	"github.com/turtacn/ipscope/internal/application/recount"
	"github.com/turtacn/ipscope/internal/config"
	kafkainfra "github.com/turtacn/ipscope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/internal/infrastructure/registry"
	httpserver "github.com/turtacn/ipscope/internal/interfaces/http"
	"github.com/turtacn/ipscope/internal/interfaces/http/handlers"
	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// Endpoint paths served by the fake registries.  The values are arbitrary;
// only the envelope shapes matter to the adapters.
const (
	pathPatents         = "/patents/query"
	pathTrademarks      = "/trademarks/search"
	pathPending         = "/applications/search"
	pathPendingFallback = "/applications/fallback"
)

// ---------------------------------------------------------------------------
// Fake upstream registries
// ---------------------------------------------------------------------------

// stubResponse is one canned upstream answer.  A zero status serves 200; a
// positive delay holds the response until the client gives up or the delay
// elapses.
type stubResponse struct {
	status int
	body   string
	delay  time.Duration
}

type registryCall struct {
	path      string
	candidate string
}

// fakeRegistry simulates one upstream registry.  Responses are keyed by
// (path, candidate); unmatched lookups answer an empty success so tests only
// stub what they assert on.
type fakeRegistry struct {
	srv   *httptest.Server
	param string

	mu    sync.Mutex
	stubs map[string]stubResponse
	seen  []registryCall
}

func newFakeRegistry(t *testing.T, queryParam string) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		param: queryParam,
		stubs: make(map[string]stubResponse),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func stubKey(path, candidate string) string { return path + "|" + candidate }

// stub registers a canned response for one (path, candidate) pair.
func (f *fakeRegistry) stub(path, candidate string, resp stubResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[stubKey(path, candidate)] = resp
}

func (f *fakeRegistry) handle(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get(f.param)

	f.mu.Lock()
	f.seen = append(f.seen, registryCall{path: r.URL.Path, candidate: candidate})
	resp, ok := f.stubs[stubKey(r.URL.Path, candidate)]
	f.mu.Unlock()

	if !ok {
		resp = stubResponse{body: `{"results":[],"total":0}`}
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}
	if resp.status == 0 {
		resp.status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

// candidates returns the distinct candidate names seen on path.  The fan-out
// is concurrent, so callers compare as sets, not sequences.
func (f *fakeRegistry) candidates(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	seen := make(map[string]struct{})
	for _, c := range f.seen {
		if c.path != path {
			continue
		}
		if _, dup := seen[c.candidate]; dup {
			continue
		}
		seen[c.candidate] = struct{}{}
		out = append(out, c.candidate)
	}
	return out
}

// sawPath reports whether any lookup hit the given path.
func (f *fakeRegistry) sawPath(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.seen {
		if c.path == path {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Upstream envelope builders
// ---------------------------------------------------------------------------

// patentsBody builds a granted-patents envelope carrying one item per id.
func patentsBody(ids ...string) string {
	items := make([]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, fmt.Sprintf(`{"patentNumber":%q}`, id))
	}
	return fmt.Sprintf(`{"patents":[%s],"total":%d}`, strings.Join(items, ","), len(ids))
}

// trademarksBody builds a trademark-search envelope declaring numFound
// matches; item details do not influence the counts.
func trademarksBody(numFound int) string {
	return fmt.Sprintf(`{"results":[],"numFound":%d}`, numFound)
}

// pendingBody builds a pending-applications envelope from raw item JSON.
func pendingBody(items ...string) string {
	return fmt.Sprintf(`{"applications":[%s],"total":%d}`, strings.Join(items, ","), len(items))
}

// ---------------------------------------------------------------------------
// In-memory recount infrastructure
// ---------------------------------------------------------------------------

// memoryResults is an in-memory stand-in for the redis result store on the
// recount path.  The aggregation read-through cache stays disabled so every
// lookup reaches the fakes.
type memoryResults struct {
	mu      sync.Mutex
	recount map[string]*ipactivity.RecountResult
}

func newMemoryResults() *memoryResults {
	return &memoryResults{recount: make(map[string]*ipactivity.RecountResult)}
}

func (m *memoryResults) SaveRecount(_ context.Context, result *ipactivity.RecountResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recount[result.RequestID] = result
	return nil
}

func (m *memoryResults) GetRecount(_ context.Context, requestID string) (*ipactivity.RecountResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.recount[requestID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeRecountNotFound, "recount result not found")
	}
	return result, nil
}

// capturePublisher collects published events in order.  Tests drain the
// requested topic through the worker handler to emulate consumption.
type capturePublisher struct {
	mu   sync.Mutex
	msgs []*kafkainfra.ProducerMessage
}

func (p *capturePublisher) Publish(_ context.Context, msg *kafkainfra.ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

// topic returns the captured messages for one topic, oldest first.
func (p *capturePublisher) topic(name string) []*kafkainfra.ProducerMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*kafkainfra.ProducerMessage
	for _, m := range p.msgs {
		if m.Topic == name {
			out = append(out, m)
		}
	}
	return out
}

// drain removes and returns the captured messages for one topic.
func (p *capturePublisher) drain(name string) []*kafkainfra.ProducerMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var drained, kept []*kafkainfra.ProducerMessage
	for _, m := range p.msgs {
		if m.Topic == name {
			drained = append(drained, m)
		} else {
			kept = append(kept, m)
		}
	}
	p.msgs = kept
	return drained
}

// asConsumed converts a captured message into its consumer-side form.
func asConsumed(pm *kafkainfra.ProducerMessage, offset int64) *kafkainfra.Message {
	return &kafkainfra.Message{
		Topic:     pm.Topic,
		Partition: 0,
		Offset:    offset,
		Key:       pm.Key,
		Value:     pm.Value,
		Headers:   pm.Headers,
		Timestamp: pm.Timestamp,
	}
}

// grantLock is a Locker that always acquires; single-worker tests have no
// contention to model.
type grantLock struct{}

func (grantLock) TryLock(context.Context) (bool, error) { return true, nil }
func (grantLock) Unlock(context.Context) error          { return nil }

// ---------------------------------------------------------------------------
// Assembled environment
// ---------------------------------------------------------------------------

// envConfig tunes the assembled stack; zero values take the defaults in
// newEnv.
type envConfig struct {
	requestTimeout time.Duration
	aggTimeout     time.Duration
	sampleSize     int
}

// env is one fully assembled service: three fake registries, the real
// adapter, aggregation and recount stack, and the real route tree behind an
// httptest server.
type env struct {
	patents    *fakeRegistry
	trademarks *fakeRegistry
	pending    *fakeRegistry

	published *capturePublisher
	results   *memoryResults
	worker    *recount.Handler

	api *httptest.Server
}

func newEnv(t *testing.T, cfg envConfig) *env {
	t.Helper()

	if cfg.requestTimeout <= 0 {
		cfg.requestTimeout = 2 * time.Second
	}
	if cfg.aggTimeout <= 0 {
		cfg.aggTimeout = 10 * time.Second
	}
	if cfg.sampleSize <= 0 {
		cfg.sampleSize = 5
	}

	logger := logging.NewNopLogger()

	e := &env{
		patents:    newFakeRegistry(t, "q"),
		trademarks: newFakeRegistry(t, "owner"),
		pending:    newFakeRegistry(t, "applicant"),
		published:  &capturePublisher{},
		results:    newMemoryResults(),
	}

	base := registry.Options{
		Doer:       registry.NewRateLimitedDoer(registry.NewHTTPClient(), 500, 1000),
		Timeout:    cfg.requestTimeout,
		UserAgent:  "ipscope-integration/1.0",
		SampleSize: cfg.sampleSize,
		Logger:     logger,
	}

	patentsOpts := base
	patentsOpts.Endpoint = config.SourceEndpoint{
		BaseURL:    e.patents.srv.URL,
		Path:       pathPatents,
		QueryParam: "q",
	}
	trademarksOpts := base
	trademarksOpts.Endpoint = config.SourceEndpoint{
		BaseURL:    e.trademarks.srv.URL,
		Path:       pathTrademarks,
		QueryParam: "owner",
	}
	pendingOpts := base
	pendingOpts.Endpoint = config.SourceEndpoint{
		BaseURL:      e.pending.srv.URL,
		Path:         pathPending,
		QueryParam:   "applicant",
		FallbackPath: pathPendingFallback,
	}

	aggregator, err := aggregation.NewService(aggregation.Options{
		Adapters: []registry.Adapter{
			registry.NewPatentsAdapter(patentsOpts),
			registry.NewTrademarksAdapter(trademarksOpts),
			registry.NewPendingAdapter(pendingOpts),
		},
		Logger:  logger,
		Timeout: cfg.aggTimeout,
	})
	require.NoError(t, err)

	recounts, err := recount.NewService(recount.ServiceOptions{
		Producer: e.published,
		Results:  e.results,
		Logger:   logger,
		Source:   "apiserver",
	})
	require.NoError(t, err)

	worker, err := recount.NewHandler(recount.HandlerOptions{
		Aggregator: aggregator,
		Results:    e.results,
		Producer:   e.published,
		Locks:      func(string) recount.Locker { return grantLock{} },
		Logger:     logger,
		Source:     "worker",
	})
	require.NoError(t, err)
	e.worker = worker

	router := httpserver.NewRouter(httpserver.RouterConfig{
		IPData:   handlers.NewIPDataHandler(aggregator, logger),
		Recounts: handlers.NewRecountHandler(recounts, logger, 1<<20),
		Health:   handlers.NewHealthHandler("integration"),
	})
	e.api = httptest.NewServer(router)
	t.Cleanup(e.api.Close)

	return e
}

// runWorker drains every queued recount.requested event through the worker
// handler, the way the worker binary does after consuming them.
func (e *env) runWorker(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i, pm := range e.published.drain(kafkainfra.TopicRecountRequested) {
		require.NoError(t, e.worker.HandleRequested(ctx, asConsumed(pm, int64(i))))
	}
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

// getJSON issues a GET against the assembled API and decodes the body into
// out when non-nil.
func (e *env) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(e.api.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// postJSON issues a POST with a JSON body and decodes the response into out
// when non-nil.
func (e *env) postJSON(t *testing.T, path, body string, out interface{}) int {
	t.Helper()
	resp, err := http.Post(e.api.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// lookupPath builds the synchronous lookup URL for one assignee.
func lookupPath(assignee string, tryVariants bool) string {
	return "/api/ipdata?assignee=" + url.QueryEscape(assignee) +
		"&tryVariants=" + strconv.FormatBool(tryVariants)
}

// lookup performs GET /api/ipdata for one assignee and decodes the result,
// failing the test on any non-200 answer.
func (e *env) lookup(t *testing.T, assignee string, tryVariants bool) *ipactivity.AggregateResult {
	t.Helper()
	var result ipactivity.AggregateResult
	status := e.getJSON(t, lookupPath(assignee, tryVariants), &result)
	require.Equal(t, http.StatusOK, status)
	return &result
}

// entriesFor filters a trace down to one source, preserving order.
func entriesFor(trace []ipactivity.TraceEntry, source ipactivity.SourceKind) []ipactivity.TraceEntry {
	var out []ipactivity.TraceEntry
	for _, entry := range trace {
		if entry.Source == source {
			out = append(out, entry)
		}
	}
	return out
}
