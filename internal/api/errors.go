package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/formlab/formd/internal/api/middleware"
	"github.com/formlab/formd/internal/log"
)

// APIError is a stable machine-readable error.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	ErrUnauthorized = &APIError{
		Code:    "UNAUTHORIZED",
		Message: "Authentication required",
	}
	ErrRunNotFound = &APIError{
		Code:    "RUN_NOT_FOUND",
		Message: "Run not found",
	}
	ErrAnalysisInProgress = &APIError{
		Code:    "ANALYSIS_IN_PROGRESS",
		Message: "An analysis run is already in progress",
	}
	ErrInvalidInput = &APIError{
		Code:    "INVALID_INPUT",
		Message: "Invalid input parameters",
	}
	ErrInternalServer = &APIError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "An internal error occurred",
	}
)

// writeJSON writes a JSON response with the given status code. Encoding
// failures happen after headers are sent, so they are only logged.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("api")
		logger.Error().
			Err(err).
			Int("status", code).
			Msg("failed to encode JSON response")
	}
}

// RespondError sends a problem-style error response:
// type is "error/<lowercase code>", code stays machine-readable, and the
// request ID is echoed for correlation.
func RespondError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError) {
	reqID := log.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = w.Header().Get(middleware.HeaderRequestID)
	}

	body := map[string]any{
		"type":      "error/" + strings.ToLower(apiErr.Code),
		"title":     apiErr.Message,
		"status":    statusCode,
		"code":      apiErr.Code,
		"requestId": reqID,
	}
	if r.URL != nil {
		body["instance"] = r.URL.EscapedPath()
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponent("api")
		logger.Error().
			Err(err).
			Str("code", apiErr.Code).
			Msg("failed to encode error response")
	}
}
