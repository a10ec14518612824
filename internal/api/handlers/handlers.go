// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/validation"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("Failed to write response")
	}
}

// decodeBody reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid JSON body")
		return false
	}
	if err := validation.ValidateStruct(v); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation, verr.Error(), verr.Fields)
		return
	}
	middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
}
