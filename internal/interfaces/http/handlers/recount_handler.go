package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/ipscope/internal/application/recount"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// RecountHandler serves the async recount endpoints: submission returns a
// receipt immediately, the result is fetched later by request ID.
type RecountHandler struct {
	service recount.Service
	logger  logging.Logger

	// maxBodySize caps recount submission bodies; zero means unlimited.
	maxBodySize int64
}

// NewRecountHandler creates the handler around the recount service.
func NewRecountHandler(service recount.Service, logger logging.Logger, maxBodySize int64) *RecountHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RecountHandler{
		service:     service,
		logger:      logger.Named("recounts"),
		maxBodySize: maxBodySize,
	}
}

// Create handles POST /api/v1/recounts.  A valid submission is accepted with
// 202 and a receipt; the aggregation itself runs on the worker.
func (h *RecountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ipactivity.RecountRequest
	if err := decodeJSON(w, r, h.maxBodySize, &req); err != nil {
		writeAppError(w, err)
		return
	}

	receipt, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.logger.Warn("recount submission rejected",
			logging.String("assignee", req.Assignee),
			logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, receipt)
}

// Get handles GET /api/v1/recounts/{requestID}.  Requests still in flight
// and expired results both answer 404; the caller retries or resubmits.
func (h *RecountHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrCodeValidation,
			"request id is required")
		return
	}

	result, err := h.service.Get(r.Context(), requestID)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.ErrCodeRecountNotFound) {
			h.logger.Error("recount fetch failed",
				logging.String("request_id", requestID),
				logging.Err(err))
		}
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
