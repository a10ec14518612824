package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/scheduler"
	"github.com/conference-schedule/backend/internal/state"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// Pinger checks the local store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbConnected := db.PingContext(ctx) == nil

		status := http.StatusOK
		response := HealthResponse{Status: "healthy", DBConnected: dbConnected}
		if !dbConnected {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

// StatusSources are the components the status endpoint reports on.
type StatusSources struct {
	Pending interface {
		PendingCount(ctx context.Context) (int, error)
	}
	Registration interface {
		State(ctx context.Context) (*models.Registration, error)
	}
	Schedules interface {
		Statuses() []scheduler.Status
	}
	Runs interface {
		List(ctx context.Context) ([]models.SyncRun, error)
	}
	Preferences interface {
		Preferences(ctx context.Context) state.Preferences
	}
	Clients interface {
		ClientCount() int
	}
	Fingerprints interface {
		All() (map[string]string, error)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	PendingStarOperations int                  `json:"pending_star_operations"`
	Registration          *models.Registration `json:"registration,omitempty"`
	Preferences           state.Preferences    `json:"preferences"`
	Schedules             []scheduler.Status   `json:"schedules"`
	LastRuns              []models.SyncRun     `json:"last_runs"`
	WebSocketClients      int                  `json:"websocket_clients"`
	Fingerprints          map[string]string    `json:"fingerprints"`
}

// Status returns a handler that reports sync state. Individual sources that
// fail are logged and left empty.
func Status(src StatusSources) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := StatusResponse{
			Preferences:  src.Preferences.Preferences(ctx),
			Schedules:    src.Schedules.Statuses(),
			LastRuns:     []models.SyncRun{},
			Fingerprints: map[string]string{},
		}

		if n, err := src.Pending.PendingCount(ctx); err != nil {
			logging.Warn().Err(err).Msg("Status: counting pending star operations")
		} else {
			resp.PendingStarOperations = n
		}

		if reg, err := src.Registration.State(ctx); err != nil {
			logging.Warn().Err(err).Msg("Status: reading registration")
		} else {
			resp.Registration = reg
		}

		if runs, err := src.Runs.List(ctx); err != nil {
			logging.Warn().Err(err).Msg("Status: listing sync runs")
		} else if runs != nil {
			resp.LastRuns = runs
		}

		if src.Clients != nil {
			resp.WebSocketClients = src.Clients.ClientCount()
		}

		if src.Fingerprints != nil {
			if fps, err := src.Fingerprints.All(); err != nil {
				logging.Warn().Err(err).Msg("Status: listing fingerprints")
			} else {
				resp.Fingerprints = fps
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
