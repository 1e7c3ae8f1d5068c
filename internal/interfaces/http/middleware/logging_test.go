package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
)

// newObservedMiddleware builds the middleware over an observer core so tests
// can assert on emitted entries.
func newObservedMiddleware(t *testing.T, config LoggingConfig) (*LoggingMiddleware, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggingMiddleware(logging.NewLoggerFromCore(core), config), logs
}

func statusHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if body != "" {
			_, _ = w.Write([]byte(body))
		}
	})
}

func TestRequestLogging_InfoForSuccess(t *testing.T) {
	mw, logs := newObservedMiddleware(t, DefaultLoggingConfig())
	handler := mw.Handler(statusHandler(http.StatusOK, "hello"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ipdata?assignee=Acme", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "request completed", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/ipdata?assignee=Acme", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.EqualValues(t, len("hello"), fields["bytes"])
}

func TestRequestLogging_WarnForClientError(t *testing.T) {
	mw, logs := newObservedMiddleware(t, DefaultLoggingConfig())
	handler := mw.Handler(statusHandler(http.StatusBadRequest, ""))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ipdata", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestRequestLogging_ErrorForServerError(t *testing.T) {
	mw, logs := newObservedMiddleware(t, DefaultLoggingConfig())
	handler := mw.Handler(statusHandler(http.StatusInternalServerError, ""))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ipdata", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestRequestLogging_SlowRequestWarns(t *testing.T) {
	config := DefaultLoggingConfig()
	config.SlowThreshold = time.Nanosecond

	mw, logs := newObservedMiddleware(t, config)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ipdata", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "request completed slowly", entries[0].Message)
}

func TestRequestLogging_SkipPaths(t *testing.T) {
	mw, logs := newObservedMiddleware(t, DefaultLoggingConfig())
	handler := mw.Handler(statusHandler(http.StatusOK, ""))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, logs.Len())
}

func TestRequestLogging_DefaultStatusWhenHandlerNeverWritesHeader(t *testing.T) {
	mw, logs := newObservedMiddleware(t, DefaultLoggingConfig())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ipdata", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}
