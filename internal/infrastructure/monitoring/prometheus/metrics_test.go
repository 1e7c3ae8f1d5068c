package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/ipscope/internal/application/aggregation"
)

var _ aggregation.MetricsRecorder = (*Recorder)(nil)

func newTestMetrics(t *testing.T) (*Metrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewMetrics(c), c
}

func TestNewMetrics_AllFamiliesScrapable(t *testing.T) {
	m, c := newTestMetrics(t)

	rec := NewRecorder(m)
	rec.ObserveLookup("patents", true, 120*time.Millisecond)
	rec.ObserveAggregate(2*time.Second, 8)
	rec.ObserveCacheLookup(false)
	m.ObserveHTTPRequest("GET", "/api/ipdata", 200, 50*time.Millisecond)
	m.HTTPRequestsInFlight.WithLabelValues().Inc()
	m.ObserveRecount("processed", time.Second)

	output := scrape(t, c)
	for _, name := range []string{
		"test_unit_registry_lookups_total",
		"test_unit_registry_lookup_duration_seconds",
		"test_unit_aggregate_duration_seconds",
		"test_unit_aggregate_candidates",
		"test_unit_result_cache_lookups_total",
		"test_unit_http_requests_total",
		"test_unit_http_request_duration_seconds",
		"test_unit_http_requests_in_flight",
		"test_unit_recount_events_total",
		"test_unit_recount_duration_seconds",
	} {
		assert.Contains(t, output, name)
	}
}

func TestRecorder_ObserveLookupOutcomes(t *testing.T) {
	m, c := newTestMetrics(t)
	rec := NewRecorder(m)

	rec.ObserveLookup("patents", true, 100*time.Millisecond)
	rec.ObserveLookup("patents", true, 200*time.Millisecond)
	rec.ObserveLookup("trademarks", false, 30*time.Second)

	output := scrape(t, c)
	assert.Contains(t, output, `test_unit_registry_lookups_total{outcome="ok",source="patents"} 2`)
	assert.Contains(t, output, `test_unit_registry_lookups_total{outcome="fail",source="trademarks"} 1`)
	assert.Contains(t, output, `test_unit_registry_lookup_duration_seconds_count{source="patents"} 2`)
}

func TestRecorder_ObserveAggregate(t *testing.T) {
	m, c := newTestMetrics(t)
	rec := NewRecorder(m)

	rec.ObserveAggregate(1500*time.Millisecond, 8)
	rec.ObserveAggregate(200*time.Millisecond, 1)

	output := scrape(t, c)
	assert.Contains(t, output, "test_unit_aggregate_duration_seconds_count 2")
	assert.Contains(t, output, "test_unit_aggregate_candidates_sum 9")
}

func TestRecorder_ObserveCacheLookup(t *testing.T) {
	m, c := newTestMetrics(t)
	rec := NewRecorder(m)

	rec.ObserveCacheLookup(true)
	rec.ObserveCacheLookup(true)
	rec.ObserveCacheLookup(false)

	output := scrape(t, c)
	assert.Contains(t, output, `test_unit_result_cache_lookups_total{outcome="hit"} 2`)
	assert.Contains(t, output, `test_unit_result_cache_lookups_total{outcome="miss"} 1`)
}

func TestMetrics_ObserveHTTPRequest(t *testing.T) {
	m, c := newTestMetrics(t)

	m.ObserveHTTPRequest("GET", "/api/ipdata", 200, 80*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/ipdata", 400, 5*time.Millisecond)

	output := scrape(t, c)
	assert.Contains(t, output, `test_unit_http_requests_total{method="GET",path="/api/ipdata",status="200"} 1`)
	assert.Contains(t, output, `test_unit_http_requests_total{method="GET",path="/api/ipdata",status="400"} 1`)
	assert.Contains(t, output, `test_unit_http_request_duration_seconds_count{method="GET",path="/api/ipdata"} 2`)
}

func TestMetrics_ObserveRecount(t *testing.T) {
	m, c := newTestMetrics(t)

	m.ObserveRecount("processed", 2*time.Second)
	m.ObserveRecount("dead_lettered", 100*time.Millisecond)

	output := scrape(t, c)
	assert.Contains(t, output, `test_unit_recount_events_total{result="processed"} 1`)
	assert.Contains(t, output, `test_unit_recount_events_total{result="dead_lettered"} 1`)
	assert.Contains(t, output, "test_unit_recount_duration_seconds_count 2")
}
