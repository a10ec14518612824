package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/push"
	"github.com/conference-schedule/backend/internal/storage"
)

// PushWebhook accepts a push message over HTTP and applies it immediately.
func PushWebhook(applier push.Applier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Failed to read request body")
			return
		}

		msg, err := push.Deliver(r.Context(), applier, body)
		switch {
		case errors.Is(err, push.ErrInvalidMessage):
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Session not found")
		case err != nil:
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to apply push message")
		default:
			writeJSON(w, http.StatusOK, msg)
		}
	}
}
