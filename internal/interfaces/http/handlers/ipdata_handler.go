package handlers

import (
	"net/http"
	"strconv"

	"github.com/turtacn/ipscope/internal/application/aggregation"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ipscope/pkg/errors"
)

// IPDataHandler serves the synchronous aggregation endpoint.
type IPDataHandler struct {
	service aggregation.Service
	logger  logging.Logger
}

// NewIPDataHandler creates the handler around the aggregation service.
func NewIPDataHandler(service aggregation.Service, logger logging.Logger) *IPDataHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IPDataHandler{
		service: service,
		logger:  logger.Named("ipdata"),
	}
}

// Lookup handles GET /api/ipdata?assignee=<name>&tryVariants=<true|false>.
// The assignee is required; tryVariants follows strconv.ParseBool and
// defaults to false when absent.  Upstream registry failures do not fail the
// request; they surface inside the result's debug trace.
func (h *IPDataHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	assignee := query.Get("assignee")

	tryVariants := false
	if raw := query.Get("tryVariants"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, apperrors.ErrCodeValidation,
				"tryVariants must be a boolean")
			return
		}
		tryVariants = parsed
	}

	result, err := h.service.Aggregate(r.Context(), assignee, tryVariants)
	if err != nil {
		h.logger.Warn("aggregate rejected",
			logging.String("assignee", assignee),
			logging.Err(err))
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
