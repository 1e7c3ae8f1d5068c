package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_006"
	ErrCodeTimeout            ErrorCode = "COMMON_007"
	ErrCodeValidation         ErrorCode = "COMMON_008"
	ErrCodeSerialization      ErrorCode = "COMMON_009"
	ErrCodeCacheError         ErrorCode = "COMMON_010"
	ErrCodeExternalService    ErrorCode = "COMMON_011"

	// CodeOK and CodeUnknown are pseudo-codes used by GetCode; they never
	// appear inside a constructed AppError.
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Validation error codes
const (
	// ErrCodeEmptyAssignee is the single terminal failure of an aggregate
	// call: the assignee name is missing or empty after trimming.
	ErrCodeEmptyAssignee ErrorCode = "VAL_001"
)

// Upstream data-source error codes.  These classify adapter-level failures
// when they need to cross a service boundary (health checks, worker retries);
// within an aggregate call the same conditions travel as trace entries, not
// errors.
const (
	ErrCodeSourceUnavailable ErrorCode = "SRC_001"
	ErrCodeSourceRateLimited ErrorCode = "SRC_002"
	ErrCodeSourceTimeout     ErrorCode = "SRC_003"
	ErrCodeSourceParseError  ErrorCode = "SRC_004"
	ErrCodeSourceBadStatus   ErrorCode = "SRC_005"
)

// Aggregation and recount error codes
const (
	ErrCodeAggregationFailed  ErrorCode = "AGG_001"
	ErrCodeRecountNotFound    ErrorCode = "AGG_002"
	ErrCodeRecountEnqueueFail ErrorCode = "AGG_003"
)

// Messaging error codes
const (
	ErrCodeEventPublishFailed ErrorCode = "EVT_001"
	ErrCodeEventInvalid       ErrorCode = "EVT_002"
	ErrCodeConsumerFailure    ErrorCode = "EVT_003"
)

// Configuration error codes
const (
	ErrCodeConfigInvalid    ErrorCode = "CFG_001"
	ErrCodeConfigLoadFailed ErrorCode = "CFG_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeEmptyAssignee: http.StatusBadRequest,

	ErrCodeSourceUnavailable: http.StatusServiceUnavailable,
	ErrCodeSourceRateLimited: http.StatusTooManyRequests,
	ErrCodeSourceTimeout:     http.StatusGatewayTimeout,
	ErrCodeSourceParseError:  http.StatusBadGateway,
	ErrCodeSourceBadStatus:   http.StatusBadGateway,

	ErrCodeAggregationFailed:  http.StatusInternalServerError,
	ErrCodeRecountNotFound:    http.StatusNotFound,
	ErrCodeRecountEnqueueFail: http.StatusInternalServerError,

	ErrCodeEventPublishFailed: http.StatusInternalServerError,
	ErrCodeEventInvalid:       http.StatusInternalServerError,
	ErrCodeConsumerFailure:    http.StatusInternalServerError,

	ErrCodeConfigInvalid:    http.StatusInternalServerError,
	ErrCodeConfigLoadFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",

	ErrCodeEmptyAssignee: "assignee name must not be empty",

	ErrCodeSourceUnavailable: "upstream registry unavailable",
	ErrCodeSourceRateLimited: "upstream registry rate limited",
	ErrCodeSourceTimeout:     "upstream registry timed out",
	ErrCodeSourceParseError:  "failed to parse registry response",
	ErrCodeSourceBadStatus:   "unexpected registry response status",

	ErrCodeAggregationFailed:  "aggregation failed",
	ErrCodeRecountNotFound:    "recount result not found",
	ErrCodeRecountEnqueueFail: "failed to enqueue recount",

	ErrCodeEventPublishFailed: "failed to publish event",
	ErrCodeEventInvalid:       "invalid event envelope",
	ErrCodeConsumerFailure:    "consumer failure",

	ErrCodeConfigInvalid:    "invalid configuration",
	ErrCodeConfigLoadFailed: "failed to load configuration",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
