package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitedDoer_PassesThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewRateLimitedDoer(srv.Client(), 100, 10)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := d.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRateLimitedDoer_ThrottlesBeyondBurst(t *testing.T) {
	t.Parallel()

	var calls int32
	inner := DoerFunc(func(_ *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	// 1 req burst, 20 rps → the second call must wait ~50ms.
	d := NewRateLimitedDoer(inner, 20, 1)
	start := time.Now()
	for i := 0; i < 2; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://upstream.test/", nil)
		require.NoError(t, err)
		_, err = d.Do(req)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRateLimitedDoer_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	inner := DoerFunc(func(_ *http.Request) (*http.Response, error) {
		t.Fatal("inner doer must not be reached")
		return nil, nil
	})

	// Tiny rate with burst already consumed forces Wait to block.
	d := NewRateLimitedDoer(inner, 0.001, 1)
	warm, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://upstream.test/", nil)
	d.limiter.Reserve() // drain the single burst token
	_ = warm

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream.test/", nil)
	require.NoError(t, err)

	_, err = d.Do(req)
	assert.Error(t, err)
}

func TestNewRateLimitedDoer_PermissiveOnZeroRate(t *testing.T) {
	t.Parallel()

	inner := DoerFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	d := NewRateLimitedDoer(inner, 0, 0)

	for i := 0; i < 50; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://upstream.test/", nil)
		require.NoError(t, err)
		_, err = d.Do(req)
		require.NoError(t, err)
	}
}

func TestDoerFunc_Implements(t *testing.T) {
	t.Parallel()

	var _ Doer = DoerFunc(nil)
	var _ Doer = (*http.Client)(nil)
	var _ Doer = (*RateLimitedDoer)(nil)
}
