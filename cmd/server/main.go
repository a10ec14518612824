// Package main is the entry point for the conference schedule sync server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conference-schedule/backend/internal/api"
	"github.com/conference-schedule/backend/internal/api/handlers"
	"github.com/conference-schedule/backend/internal/config"
	"github.com/conference-schedule/backend/internal/feedsync"
	"github.com/conference-schedule/backend/internal/fingerprint"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/push"
	"github.com/conference-schedule/backend/internal/remote"
	"github.com/conference-schedule/backend/internal/scheduler"
	"github.com/conference-schedule/backend/internal/starsync"
	"github.com/conference-schedule/backend/internal/state"
	"github.com/conference-schedule/backend/internal/storage"
	"github.com/conference-schedule/backend/internal/supervisor"
	"github.com/conference-schedule/backend/internal/supervisor/services"
	"github.com/conference-schedule/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *healthCheck {
		if err := runHealthCheck(cfg.Server.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config) error {
	logging.Info().Str("version", version).Msg("Starting conference schedule sync")

	db, err := storage.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	var fingerprints *fingerprint.Store
	if cfg.Fingerprints.InMemory {
		fingerprints, err = fingerprint.OpenInMemory()
	} else {
		fingerprints, err = fingerprint.Open(cfg.Fingerprints.Dir)
	}
	if err != nil {
		return fmt.Errorf("opening fingerprint store: %w", err)
	}
	defer fingerprints.Close()

	// Repositories and persisted state
	sessions := storage.NewSessionRepository(db)
	registrations := storage.NewRegistrationRepository(db)
	runs := storage.NewSyncRunRepository(db)
	content := storage.NewContentRepository(db)
	reconciler := storage.NewReconciler(db)
	syncState := state.New(storage.NewSettingsRepository(db), state.Defaults{
		WifiOnly:       cfg.Sync.WifiOnly,
		BackgroundSync: cfg.Sync.Background,
	})

	hub := websocket.NewHub()
	events := websocket.NewEventBroadcaster(hub)

	client := remote.New(remote.Options{
		ConnectTimeout:   cfg.Remote.ConnectTimeout,
		SocketTimeout:    cfg.Remote.SocketTimeout,
		ProbeURL:         cfg.Feeds.ProbeURL,
		ProbeUnavailable: cfg.Feeds.ProbeUnavailable,
		StarSyncURL:      cfg.Remote.StarSyncURL,
		RegistrationURL:  cfg.Remote.RegistrationURL,
		UserAgent:        "confsched-sync/" + version,
	})

	// Feed sync
	connectivity := feedsync.NewStaticConnectivity(cfg.Network.Connected, cfg.Network.Unmetered)
	feeds := feedsync.NewService(
		feedsync.DefaultResources(&cfg.Feeds),
		feedsync.NewDetector(connectivity, syncState, client, fingerprints),
		feedsync.NewRemoteFetcher(client, reconciler),
		feedsync.NewSeeder(cfg.Sync.SeedDir, reconciler, syncState, fingerprints, cfg.Sync.SchemaVersion),
		fingerprints,
		runs,
		events,
	)

	// Star sync
	coordinator := starsync.NewCoordinator(sessions, client, registrations, syncState, events)
	registrar := starsync.NewRegistrar(registrations, client, syncState, events)

	sched := scheduler.New(syncState)
	tasks := []struct {
		kind     string
		interval time.Duration
		task     scheduler.Task
	}{
		{scheduler.KindSchedule, cfg.Sync.ScheduleInterval, feedTask(feeds, feedsync.GroupSchedule)},
		{scheduler.KindNews, cfg.Sync.NewsInterval, feedTask(feeds, feedsync.GroupNews)},
		{scheduler.KindTweets, cfg.Sync.TweetsInterval, feedTask(feeds, feedsync.GroupTweets)},
		{scheduler.KindStars, cfg.Sync.StarsInterval, starTask(coordinator)},
	}
	for _, t := range tasks {
		if err := sched.Register(t.kind, t.interval, t.task); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.Services{
		DB:          db,
		Sessions:    sessions,
		Stars:       coordinator,
		Push:        coordinator,
		Content:     content,
		Registrar:   registrar,
		Preferences: syncState,
		Scheduler:   sched,
		Hub:         hub,
		StaticDir:   cfg.Server.StaticDir,
		Status: handlers.StatusSources{
			Pending:      coordinator,
			Registration: registrar,
			Schedules:    sched,
			Runs:         runs,
			Preferences:  syncState,
			Clients:      hub,
			Fingerprints: fingerprints,
		},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})

	schedSvc := services.NewSchedulerService(sched)
	schedSvc.OnStart = func() {
		// Foreground pass at startup: seeds on first run, then refreshes.
		for _, kind := range sched.Kinds() {
			if err := sched.Trigger(kind, false); err != nil {
				logging.Warn().Err(err).Str("kind", kind).Msg("Initial sync not queued")
			}
		}
	}
	tree.AddSyncService(schedSvc)
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if cfg.Push.NATSEnabled {
		tree.AddMessagingService(push.NewNATSSubscriber(cfg.Push.NATSURL, cfg.Push.Subject, coordinator))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", cfg.Server.Addr).Msg("Server listening")
	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Server stopped")
	return nil
}

func feedTask(feeds *feedsync.Service, group feedsync.Group) scheduler.Task {
	return func(ctx context.Context, force bool) error {
		_, err := feeds.Sync(ctx, group, force)
		return err
	}
}

func starTask(c *starsync.Coordinator) scheduler.Task {
	return func(ctx context.Context, _ bool) error {
		_, err := c.Sync(ctx)
		return err
	}
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
