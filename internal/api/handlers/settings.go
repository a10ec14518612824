package handlers

import (
	"context"
	"net/http"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/state"
)

// PreferenceStore reads and writes sync preferences.
type PreferenceStore interface {
	Preferences(ctx context.Context) state.Preferences
	SetPreferences(ctx context.Context, p state.Preferences) error
}

// UpdateSettingsRequest is a partial preferences update.
type UpdateSettingsRequest struct {
	WifiOnly       *bool `json:"wifi_only"`
	BackgroundSync *bool `json:"background_sync"`
}

// GetSettings returns the sync preferences.
func GetSettings(prefs PreferenceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, prefs.Preferences(r.Context()))
	}
}

// UpdateSettings applies a partial preferences update and returns the result.
func UpdateSettings(prefs PreferenceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateSettingsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ctx := r.Context()
		p := prefs.Preferences(ctx)
		if req.WifiOnly != nil {
			p.WifiOnly = *req.WifiOnly
		}
		if req.BackgroundSync != nil {
			p.BackgroundSync = *req.BackgroundSync
		}

		if err := prefs.SetPreferences(ctx, p); err != nil {
			logging.Error().Err(err).Msg("Saving preferences")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
