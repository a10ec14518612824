package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/storage"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// SessionReader reads mirrored sessions.
type SessionReader interface {
	List(ctx context.Context, starredOnly bool) ([]models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
}

// StarSetter records user star actions.
type StarSetter interface {
	SetStarred(ctx context.Context, sessionID string, starred bool) error
}

// ListSessions returns all sessions, or only starred ones with ?starred=true.
func ListSessions(sessions SessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		starredOnly, _ := strconv.ParseBool(r.URL.Query().Get("starred"))

		list, err := sessions.List(r.Context(), starredOnly)
		if err != nil {
			logging.Error().Err(err).Msg("Listing sessions")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list sessions")
			return
		}
		if list == nil {
			list = []models.Session{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetSession returns one session.
func GetSession(sessions SessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.GetByID(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Session not found")
			return
		}
		if err != nil {
			logging.Error().Err(err).Msg("Reading session")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read session")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// StarSession returns a handler that stars (POST) or unstars (DELETE) a
// session. The change is applied locally at once and marked pending.
func StarSession(stars StarSetter, sessions SessionReader, starred bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		err := stars.SetStarred(r.Context(), id, starred)
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Session not found")
			return
		}
		if err != nil {
			logging.Error().Err(err).Str("session_id", id).Msg("Updating star")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update star")
			return
		}

		s, err := sessions.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read session")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
