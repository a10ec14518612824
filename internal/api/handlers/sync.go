package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/scheduler"
)

// SyncTrigger starts sync passes.
type SyncTrigger interface {
	Trigger(kind string, force bool) error
	Run(ctx context.Context, kind string, force bool) error
}

// SyncResponse reports a foreground sync request.
type SyncResponse struct {
	Kind   string `json:"kind"`
	Force  bool   `json:"force"`
	Status string `json:"status"` // queued, completed, failed
	Error  string `json:"error,omitempty"`
}

// TriggerSync returns a handler for POST /api/sync/{kind}. With ?wait=true the
// request blocks until the pass finishes.
func TriggerSync(trigger SyncTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := mux.Vars(r)["kind"]
		q := r.URL.Query()
		force, _ := strconv.ParseBool(q.Get("force"))
		wait, _ := strconv.ParseBool(q.Get("wait"))

		resp := SyncResponse{Kind: kind, Force: force}

		if !wait {
			if err := trigger.Trigger(kind, force); err != nil {
				writeTriggerError(w, err)
				return
			}
			resp.Status = "queued"
			writeJSON(w, http.StatusAccepted, resp)
			return
		}

		err := trigger.Run(r.Context(), kind, force)
		switch {
		case errors.Is(err, scheduler.ErrUnknownKind), errors.Is(err, scheduler.ErrStopped):
			writeTriggerError(w, err)
		case err != nil:
			resp.Status = "failed"
			resp.Error = err.Error()
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			resp.Status = "completed"
			writeJSON(w, http.StatusOK, resp)
		}
	}
}

func writeTriggerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrUnknownKind):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, err.Error())
	case errors.Is(err, scheduler.ErrStopped):
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrServiceStopping, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, err.Error())
	}
}
