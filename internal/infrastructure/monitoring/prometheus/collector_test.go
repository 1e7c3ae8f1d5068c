package prometheus

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{
		Namespace: "test",
		Subsystem: "unit",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrape(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsCollector_RequiresNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestNewMetricsCollector_NilLoggerAllowed(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	c.RegisterCounter("notpanicking_total", "help").WithLabelValues().Inc()
}

func TestNewMetricsCollector_ProcessMetrics(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{
		Namespace:            "test",
		EnableProcessMetrics: true,
	}, logging.NewNopLogger())
	require.NoError(t, err)

	assert.Contains(t, scrape(t, c), "process_cpu_seconds_total")
}

func TestRegisterCounter_LabeledValues(t *testing.T) {
	c := newTestCollector(t)
	counter := c.RegisterCounter("requests_total", "Requests", "method")
	counter.WithLabelValues("GET").Add(5)

	assert.Contains(t, scrape(t, c), `test_unit_requests_total{method="GET"} 5`)
}

func TestRegisterCounter_GetOrCreate(t *testing.T) {
	c := newTestCollector(t)
	first := c.RegisterCounter("dup_total", "help")
	second := c.RegisterCounter("dup_total", "help")

	first.WithLabelValues().Inc()
	second.WithLabelValues().Inc()

	// both handles share one underlying family
	assert.Contains(t, scrape(t, c), "test_unit_dup_total 2")
}

func TestRegisterGauge_SetAndMove(t *testing.T) {
	c := newTestCollector(t)
	gauge := c.RegisterGauge("depth", "Queue depth", "queue")
	g := gauge.WithLabelValues("recount")
	g.Set(10)
	g.Dec()
	g.Add(3)

	assert.Contains(t, scrape(t, c), `test_unit_depth{queue="recount"} 12`)
}

func TestRegisterHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	hist := c.RegisterHistogram("latency_seconds", "Latency", nil)
	hist.WithLabelValues().Observe(0.1)

	output := scrape(t, c)
	assert.Contains(t, output, "test_unit_latency_seconds_bucket")
	assert.Contains(t, output, "test_unit_latency_seconds_count 1")
}

func TestRegister_TypeConflictFallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("conflict", "help").WithLabelValues().Inc()

	gauge := c.RegisterGauge("conflict", "help")
	gauge.WithLabelValues().Set(10)

	output := scrape(t, c)
	assert.Contains(t, output, "# TYPE test_unit_conflict counter")
	assert.Contains(t, output, "test_unit_conflict 1")
}

func TestRegister_Concurrent(t *testing.T) {
	c := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RegisterCounter("concurrent_total", "help", "id").WithLabelValues("1").Inc()
		}()
	}
	wg.Wait()

	assert.Contains(t, scrape(t, c), `test_unit_concurrent_total{id="1"} 50`)
}

func TestMustRegister_CustomCollector(t *testing.T) {
	c := newTestCollector(t)
	custom := prometheus.NewCounter(prometheus.CounterOpts{Name: "custom_total"})
	c.MustRegister(custom)
	custom.Inc()

	assert.Contains(t, scrape(t, c), "custom_total 1")
}

func TestTimer_ObservesElapsed(t *testing.T) {
	c := newTestCollector(t)
	hist := c.RegisterHistogram("timed_seconds", "Timed", nil)

	timer := NewTimer(hist.WithLabelValues())
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDuration()

	assert.Contains(t, scrape(t, c), "test_unit_timed_seconds_count 1")
}

func TestTimer_NilHistogramSafe(t *testing.T) {
	timer := NewTimer(nil)
	timer.ObserveDuration()
}
