package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/starsync"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// Registrar drives device registration.
type Registrar interface {
	State(ctx context.Context) (*models.Registration, error)
	Register(ctx context.Context, account, pushToken string) (*models.Registration, error)
	Unregister(ctx context.Context) error
}

// RegisterRequest is the body of POST /api/registration.
type RegisterRequest struct {
	Account   string `json:"account" validate:"omitempty,email"`
	PushToken string `json:"push_token" validate:"required,max=4096"`
}

// GetRegistration returns the current registration state.
func GetRegistration(reg Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := reg.State(r.Context())
		if err != nil {
			logging.Error().Err(err).Msg("Reading registration")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read registration")
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// Register registers the device with the remote service.
func Register(reg Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decodeBody(w, r, &req) {
			return
		}

		state, err := reg.Register(r.Context(), req.Account, req.PushToken)
		if err != nil {
			writeRegistrationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// Unregister removes the device registration.
func Unregister(reg Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Unregister(r.Context()); err != nil {
			writeRegistrationError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeRegistrationError(w http.ResponseWriter, err error) {
	var rerr *starsync.RegistrationError
	switch {
	case errors.Is(err, starsync.ErrNotRegistered):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrNotRegistered, err.Error())
	case errors.As(err, &rerr):
		middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrRegistration, rerr.Error(),
			map[string]string{"op": rerr.Op, "reason": rerr.Reason})
	default:
		logging.Error().Err(err).Msg("Registration request failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Registration failed")
	}
}
