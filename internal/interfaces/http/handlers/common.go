// Package handlers contains the HTTP handlers for the aggregation API, the
// async recount endpoints and the health probes.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/turtacn/ipscope/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a structured error response with an explicit status.
func writeError(w http.ResponseWriter, statusCode int, code apperrors.ErrorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{Code: code.String(), Message: message})
}

// writeAppError maps an application error onto its HTTP status.  Server-side
// failures get the code's canned message so internals never reach clients;
// client errors keep their specific message.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := apperrors.HTTPStatusForCode(code)

	message := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		message = apperrors.DefaultMessageForCode(code)
	}
	writeError(w, status, code, message)
}

// decodeJSON reads a JSON request body into v, capping the read at maxBytes
// when positive.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return apperrors.New(apperrors.ErrCodeValidation, "invalid request body").WithCause(err)
	}
	return nil
}
