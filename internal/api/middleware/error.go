// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/goccy/go-json"

	"github.com/conference-schedule/backend/internal/logging"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	}); err != nil {
		logging.Debug().Err(err).Msg("Failed to write error response")
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Error().
					Str("panic", fmt.Sprint(rec)).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Common error codes
const (
	ErrNotFound        = "not_found"
	ErrBadRequest      = "bad_request"
	ErrConflict        = "conflict"
	ErrInternalError   = "internal_error"
	ErrValidation      = "validation_error"
	ErrUpstream        = "upstream_error"
	ErrNotRegistered   = "not_registered"
	ErrRegistration    = "registration_error"
	ErrServiceStopping = "service_stopping"
)
