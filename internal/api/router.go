// Package api provides HTTP routing for the sync service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conference-schedule/backend/internal/api/handlers"
	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/push"
	"github.com/conference-schedule/backend/internal/scheduler"
	"github.com/conference-schedule/backend/internal/storage"
	"github.com/conference-schedule/backend/internal/websocket"
)

// Services are the components behind the API.
type Services struct {
	DB          handlers.Pinger
	Sessions    handlers.SessionReader
	Stars       handlers.StarSetter
	Push        push.Applier
	Content     handlers.ContentLister
	Registrar   handlers.Registrar
	Preferences handlers.PreferenceStore
	Scheduler   *scheduler.Scheduler
	Hub         *websocket.Hub
	Status      handlers.StatusSources
	StaticDir   string
}

// bucketPattern matches the mirrored buckets exposed read-only. Sessions have
// their own routes.
const bucketPattern = "{bucket:rooms|tracks|speakers|blocks|news|tweets}"

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods(http.MethodGet)
	api.HandleFunc("/status", handlers.Status(s.Status)).Methods(http.MethodGet)

	if s.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods(http.MethodGet)
	}

	api.HandleFunc("/sync/{kind}", handlers.TriggerSync(s.Scheduler)).Methods(http.MethodPost)

	api.HandleFunc("/sessions", handlers.ListSessions(s.Sessions)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", handlers.GetSession(s.Sessions)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/star", handlers.StarSession(s.Stars, s.Sessions, true)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/star", handlers.StarSession(s.Stars, s.Sessions, false)).Methods(http.MethodDelete)

	api.HandleFunc("/push", handlers.PushWebhook(s.Push)).Methods(http.MethodPost)

	api.HandleFunc("/registration", handlers.GetRegistration(s.Registrar)).Methods(http.MethodGet)
	api.HandleFunc("/registration", handlers.Register(s.Registrar)).Methods(http.MethodPost)
	api.HandleFunc("/registration", handlers.Unregister(s.Registrar)).Methods(http.MethodDelete)

	api.HandleFunc("/settings", handlers.GetSettings(s.Preferences)).Methods(http.MethodGet)
	api.HandleFunc("/settings", handlers.UpdateSettings(s.Preferences)).Methods(http.MethodPut)

	api.HandleFunc("/"+bucketPattern, handlers.ListBucket(s.Content)).Methods(http.MethodGet)

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}

// compile-time checks for the concrete store types wired in main.
var (
	_ handlers.SessionReader = (*storage.SessionRepository)(nil)
	_ handlers.ContentLister = (*storage.ContentRepository)(nil)
	_ handlers.Pinger        = (*storage.DB)(nil)
)
