package prometheus

import (
	"strconv"
	"time"
)

// Metrics holds every instrument the service emits.  Families are registered
// during construction; individual series appear once first observed.
type Metrics struct {
	// Registry lookups.
	LookupsTotal   CounterVec
	LookupDuration HistogramVec

	// Aggregation runs.
	AggregateDuration   HistogramVec
	AggregateCandidates HistogramVec
	ResultCacheLookups  CounterVec

	// HTTP layer.
	HTTPRequestsTotal    CounterVec
	HTTPRequestDuration  HistogramVec
	HTTPRequestsInFlight GaugeVec

	// Recount worker.
	RecountEventsTotal CounterVec
	RecountDuration    HistogramVec
}

var (
	DefaultHTTPDurationBuckets      = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultLookupDurationBuckets    = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultAggregateDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	// candidateCountBuckets covers the spread from a bare name to the full
	// suffix expansion.
	candidateCountBuckets = []float64{1, 2, 4, 8}
)

// NewMetrics registers the service's instrument families on the collector.
func NewMetrics(collector MetricsCollector) *Metrics {
	return &Metrics{
		LookupsTotal: collector.RegisterCounter("registry_lookups_total",
			"Registry lookup attempts by source and outcome", "source", "outcome"),
		LookupDuration: collector.RegisterHistogram("registry_lookup_duration_seconds",
			"Registry lookup duration by source", DefaultLookupDurationBuckets, "source"),

		AggregateDuration: collector.RegisterHistogram("aggregate_duration_seconds",
			"Wall-clock duration of one aggregation run", DefaultAggregateDurationBuckets),
		AggregateCandidates: collector.RegisterHistogram("aggregate_candidates",
			"Name variations queried per aggregation run", candidateCountBuckets),
		ResultCacheLookups: collector.RegisterCounter("result_cache_lookups_total",
			"Aggregate result cache lookups by outcome", "outcome"),

		HTTPRequestsTotal: collector.RegisterCounter("http_requests_total",
			"HTTP requests by method, route and status", "method", "path", "status"),
		HTTPRequestDuration: collector.RegisterHistogram("http_request_duration_seconds",
			"HTTP request duration by method and route", DefaultHTTPDurationBuckets, "method", "path"),
		HTTPRequestsInFlight: collector.RegisterGauge("http_requests_in_flight",
			"HTTP requests currently being served"),

		RecountEventsTotal: collector.RegisterCounter("recount_events_total",
			"Recount events consumed by terminal result", "result"),
		RecountDuration: collector.RegisterHistogram("recount_duration_seconds",
			"Recount processing duration on the worker", DefaultAggregateDurationBuckets),
	}
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveRecount records one consumed recount event.  Result is one of
// "processed", "failed" or "dead_lettered".
func (m *Metrics) ObserveRecount(result string, duration time.Duration) {
	m.RecountEventsTotal.WithLabelValues(result).Inc()
	m.RecountDuration.WithLabelValues().Observe(duration.Seconds())
}

// Recorder adapts Metrics to the aggregation service's recorder contract.
type Recorder struct {
	metrics *Metrics
}

func NewRecorder(metrics *Metrics) *Recorder {
	return &Recorder{metrics: metrics}
}

func (r *Recorder) ObserveLookup(source string, ok bool, duration time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "fail"
	}
	r.metrics.LookupsTotal.WithLabelValues(source, outcome).Inc()
	r.metrics.LookupDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (r *Recorder) ObserveAggregate(duration time.Duration, candidates int) {
	r.metrics.AggregateDuration.WithLabelValues().Observe(duration.Seconds())
	r.metrics.AggregateCandidates.WithLabelValues().Observe(float64(candidates))
}

func (r *Recorder) ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.metrics.ResultCacheLookups.WithLabelValues(outcome).Inc()
}
