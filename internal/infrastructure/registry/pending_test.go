package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/domain/activity"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

func pendingOptions(srv *httptest.Server, sampleSize int) Options {
	return Options{
		Endpoint: config.SourceEndpoint{
			BaseURL:      srv.URL,
			Path:         "/applications/search",
			QueryParam:   "applicant",
			FallbackPath: "/queries",
		},
		Doer:       srv.Client(),
		Timeout:    2 * time.Second,
		SampleSize: sampleSize,
	}
}

func TestPendingAdapter_FallbackAfterPrimaryFailure(t *testing.T) {
	t.Parallel()

	var primaryHits, fallbackHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/applications/search":
			atomic.AddInt32(&primaryHits, 1)
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/queries":
			atomic.AddInt32(&fallbackHits, 1)
			w.Write([]byte(`{"applications":[{"appType":"provisional"}],"total":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewPendingAdapter(pendingOptions(srv, 5))
	assert.Equal(t, ipactivity.SourcePending, a.Kind())

	attempts := a.Lookup(context.Background(), "Acme")
	require.Len(t, attempts, 2, "failed primary plus fallback")

	assert.False(t, attempts[0].OK())
	assert.Equal(t, activity.ReasonHTTPStatus, attempts[0].Err.Reason)
	assert.Contains(t, attempts[0].URL, "/applications/search")

	final, ok := activity.Final(attempts)
	require.True(t, ok)
	require.True(t, final.OK())
	assert.Equal(t, 1, final.Batch.Count)
	assert.Contains(t, final.URL, "/queries")

	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fallbackHits))
}

func TestPendingAdapter_EmptySuccessDoesNotTriggerFallback(t *testing.T) {
	t.Parallel()

	var fallbackHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/applications/search":
			w.Write([]byte(`{"applications":[]}`))
		case "/queries":
			atomic.AddInt32(&fallbackHits, 1)
			w.Write([]byte(`{"applications":[{"x":1}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewPendingAdapter(pendingOptions(srv, 5))
	attempts := a.Lookup(context.Background(), "Acme")

	require.Len(t, attempts, 1, "an empty success is an answer, never retried")
	assert.True(t, attempts[0].OK())
	assert.Zero(t, attempts[0].Batch.Count)
	assert.Zero(t, atomic.LoadInt32(&fallbackHits))
}

func TestPendingAdapter_BothEndpointsFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewPendingAdapter(pendingOptions(srv, 5))
	attempts := a.Lookup(context.Background(), "Acme")

	require.Len(t, attempts, 2)
	for _, at := range attempts {
		assert.False(t, at.OK())
		assert.Equal(t, http.StatusBadGateway, at.Err.Status)
	}
}

func TestPendingAdapter_NoFallbackConfigured(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := pendingOptions(srv, 5)
	opts.Endpoint.FallbackPath = ""
	a := NewPendingAdapter(opts)

	attempts := a.Lookup(context.Background(), "Acme")
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].OK())
}

func TestPendingAdapter_SampleCappedAtConfiguredSize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		items := make([]string, 10)
		for i := range items {
			items[i] = fmt.Sprintf(`{"appId":%d}`, i)
		}
		body := `{"applications":[`
		for i, it := range items {
			if i > 0 {
				body += ","
			}
			body += it
		}
		body += `],"total":10}`
		w.Write([]byte(body))
	}))
	defer srv.Close()

	a := NewPendingAdapter(pendingOptions(srv, 3))
	attempts := a.Lookup(context.Background(), "Acme")
	require.Len(t, attempts, 1)
	got := attempts[0]

	require.True(t, got.OK())
	assert.Equal(t, 10, got.Batch.Count, "count reflects the full total")
	require.Len(t, got.Batch.Sample, 3, "sample capped")
	assert.JSONEq(t, `{"appId":0}`, string(got.Batch.Sample[0]))
}

func TestPendingAdapter_DefaultSampleSizeApplied(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var items []byte
		for i := 0; i < 8; i++ {
			if i > 0 {
				items = append(items, ',')
			}
			items = append(items, []byte(fmt.Sprintf(`{"appId":%d}`, i))...)
		}
		w.Write(append(append([]byte(`{"applications":[`), items...), []byte(`]}`)...))
	}))
	defer srv.Close()

	a := NewPendingAdapter(pendingOptions(srv, 0)) // 0 → default
	attempts := a.Lookup(context.Background(), "Acme")
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].OK())
	assert.Len(t, attempts[0].Batch.Sample, config.DefaultSourceMaxSampleDocs)
}

func TestExtractPendingSample_FewerItemsThanCap(t *testing.T) {
	t.Parallel()

	batch := &activity.Batch{}
	extractPendingSample([]json.RawMessage{json.RawMessage(`{"a":1}`)}, batch, 5)
	assert.Len(t, batch.Sample, 1)

	empty := &activity.Batch{}
	extractPendingSample(nil, empty, 5)
	assert.Nil(t, empty.Sample)
}
