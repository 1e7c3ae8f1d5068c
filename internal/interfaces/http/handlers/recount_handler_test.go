package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// stubRecounter satisfies recount.Service with canned answers.
type stubRecounter struct {
	receipt *ipactivity.RecountReceipt
	result  *ipactivity.RecountResult
	err     error

	lastSubmit ipactivity.RecountRequest
	lastGetID  string
}

func (s *stubRecounter) Submit(_ context.Context, req ipactivity.RecountRequest) (*ipactivity.RecountReceipt, error) {
	s.lastSubmit = req
	if s.err != nil {
		return nil, s.err
	}
	return s.receipt, nil
}

func (s *stubRecounter) Get(_ context.Context, requestID string) (*ipactivity.RecountResult, error) {
	s.lastGetID = requestID
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestRecountCreate_Accepted(t *testing.T) {
	stub := &stubRecounter{receipt: &ipactivity.RecountReceipt{
		RequestID:  "req-1",
		Status:     ipactivity.RecountStatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}}
	h := NewRecountHandler(stub, nil, 0)

	body := strings.NewReader(`{"assignee":"Acme","tryVariants":true}`)
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/recounts", body))

	require.Equal(t, http.StatusAccepted, w.Code)

	var receipt ipactivity.RecountReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, "req-1", receipt.RequestID)
	assert.Equal(t, ipactivity.RecountStatusQueued, receipt.Status)

	assert.Equal(t, "Acme", stub.lastSubmit.Assignee)
	assert.True(t, stub.lastSubmit.TryVariants)
}

func TestRecountCreate_MalformedBody(t *testing.T) {
	h := NewRecountHandler(&stubRecounter{}, nil, 0)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/recounts", strings.NewReader("{not json")))

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrCodeValidation.String(), body.Code)
}

func TestRecountCreate_BodyTooLarge(t *testing.T) {
	h := NewRecountHandler(&stubRecounter{}, nil, 16)

	big := `{"assignee":"` + strings.Repeat("A", 64) + `"}`
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/recounts", strings.NewReader(big)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecountCreate_EmptyAssigneeRejected(t *testing.T) {
	stub := &stubRecounter{err: apperrors.New(apperrors.ErrCodeEmptyAssignee, "assignee name must not be empty")}
	h := NewRecountHandler(stub, nil, 0)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/recounts", strings.NewReader(`{"assignee":""}`)))

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrCodeEmptyAssignee.String(), body.Code)
}

func TestRecountCreate_EnqueueFailure(t *testing.T) {
	stub := &stubRecounter{err: apperrors.New(apperrors.ErrCodeRecountEnqueueFail, "broker 10.0.0.9 unreachable")}
	h := NewRecountHandler(stub, nil, 0)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/v1/recounts", strings.NewReader(`{"assignee":"Acme"}`)))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrCodeRecountEnqueueFail.String(), body.Code)
	assert.NotContains(t, body.Message, "10.0.0.9")
}

// recountRouter mounts Get under the same pattern the real router uses so
// chi.URLParam resolves.
func recountRouter(h *RecountHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/recounts/{requestID}", h.Get)
	return r
}

func TestRecountGet_Found(t *testing.T) {
	stub := &stubRecounter{result: &ipactivity.RecountResult{
		RequestID:   "req-9",
		Assignee:    "Acme",
		TryVariants: true,
		Result:      ipactivity.AggregateResult{AssigneeQueried: "Acme", Patents: 7},
		CompletedAt: time.Now().UTC(),
		DurationMs:  1200,
	}}
	router := recountRouter(NewRecountHandler(stub, nil, 0))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recounts/req-9", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-9", stub.lastGetID)

	var result ipactivity.RecountResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "req-9", result.RequestID)
	assert.Equal(t, 7, result.Result.Patents)
}

func TestRecountGet_NotFound(t *testing.T) {
	stub := &stubRecounter{err: apperrors.New(apperrors.ErrCodeRecountNotFound, "recount result not found")}
	router := recountRouter(NewRecountHandler(stub, nil, 0))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recounts/req-missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrCodeRecountNotFound.String(), body.Code)
}

func TestRecountGet_MissingIDWithoutRouter(t *testing.T) {
	h := NewRecountHandler(&stubRecounter{}, nil, 0)

	// Outside a chi route there is no URL parameter to read.
	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/v1/recounts/", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
