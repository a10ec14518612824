// Package starsync reconciles locally starred sessions with the remote
// authoritative set and manages the device registration it depends on.
package starsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
	"github.com/conference-schedule/backend/internal/push"
	"github.com/conference-schedule/backend/internal/remote"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// ErrNotRegistered means there is no server-side identity to sync against.
var ErrNotRegistered = errors.New("device not registered")

// SessionStore is the local star state.
type SessionStore interface {
	SetStarred(ctx context.Context, id string, starred bool) error
	ApplyPush(ctx context.Context, id string, starred bool) error
	ListPending(ctx context.Context) ([]models.StarState, error)
	ListStarred(ctx context.Context) ([]models.StarState, error)
	CountPending(ctx context.Context) (int, error)
	ReplaceStarred(ctx context.Context, starredIDs []string) error
}

// StarClient is the remote star-sync endpoint.
type StarClient interface {
	SyncStars(ctx context.Context, req remote.StarSyncRequest) (*remote.StarSyncResponse, error)
}

// RegistrationReader returns the current device registration.
type RegistrationReader interface {
	Get(ctx context.Context) (*models.Registration, error)
}

// InitFlag records whether a star sync has ever succeeded for the current
// registration.
type InitFlag interface {
	StarSyncInitialized(ctx context.Context) (bool, error)
	SetStarSyncInitialized(ctx context.Context, initialized bool) error
}

// StarNotifier receives star state changes for the UI-status channel.
type StarNotifier interface {
	BroadcastStarsChanged(sessionIDs []string, pending int)
}

// Result is the outcome of a star sync.
type Result struct {
	Skipped  bool     `json:"skipped"`
	Reason   string   `json:"reason,omitempty"`
	ToStar   []string `json:"to_star"`
	ToUnstar []string `json:"to_unstar"`
	Starred  []string `json:"starred"`
	Initial  bool     `json:"initial"`
}

// Coordinator owns the star state machine of every session.
type Coordinator struct {
	sessions      SessionStore
	client        StarClient
	registrations RegistrationReader
	flag          InitFlag
	notifier      StarNotifier

	mu sync.Mutex
}

// NewCoordinator creates a coordinator. notifier may be nil.
func NewCoordinator(sessions SessionStore, client StarClient, registrations RegistrationReader, flag InitFlag, notifier StarNotifier) *Coordinator {
	return &Coordinator{
		sessions:      sessions,
		client:        client,
		registrations: registrations,
		flag:          flag,
		notifier:      notifier,
	}
}

// SetStarred records a user action. The flag flips at once and the session
// stays pending until a sync confirms the server's view.
func (c *Coordinator) SetStarred(ctx context.Context, sessionID string, starred bool) error {
	if err := c.sessions.SetStarred(ctx, sessionID, starred); err != nil {
		return err
	}
	c.publish(ctx, []string{sessionID})
	return nil
}

// ApplyPush applies a star or unstar push message. The pending flag is not
// touched.
func (c *Coordinator) ApplyPush(ctx context.Context, msg push.Message) error {
	if err := c.sessions.ApplyPush(ctx, msg.SessionID, msg.Starred()); err != nil {
		return err
	}
	c.publish(ctx, []string{msg.SessionID})
	return nil
}

// Sync sends the pending intent and converges local state to the returned
// authoritative set. Without a registration it does nothing and returns a
// skipped result. On failure the pending flags are left for the next attempt.
func (c *Coordinator) Sync(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, err := c.registrations.Get(ctx)
	if err != nil {
		metrics.StarSyncs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reading registration: %w", err)
	}
	if !reg.IsRegistered() {
		metrics.StarSyncs.WithLabelValues("skipped").Inc()
		logging.Debug().Str("status", string(reg.Status)).Msg("Star sync skipped, device not registered")
		return &Result{Skipped: true, Reason: ErrNotRegistered.Error()}, nil
	}

	initialized, err := c.flag.StarSyncInitialized(ctx)
	if err != nil {
		metrics.StarSyncs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("reading star sync flag: %w", err)
	}

	intent, err := c.intent(ctx, !initialized)
	if err != nil {
		metrics.StarSyncs.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &Result{Initial: !initialized}
	for _, s := range intent {
		if s.Starred {
			result.ToStar = append(result.ToStar, s.SessionID)
		} else {
			result.ToUnstar = append(result.ToUnstar, s.SessionID)
		}
	}

	resp, err := c.client.SyncStars(ctx, remote.StarSyncRequest{
		DeviceID: reg.DeviceID,
		ToStar:   result.ToStar,
		ToUnstar: result.ToUnstar,
	})
	if err != nil {
		metrics.StarSyncs.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Int("to_star", len(result.ToStar)).Int("to_unstar", len(result.ToUnstar)).Msg("Star sync failed, pending operations kept")
		return result, err
	}

	if err := c.sessions.ReplaceStarred(ctx, resp.Starred); err != nil {
		metrics.StarSyncs.WithLabelValues("error").Inc()
		return result, fmt.Errorf("replacing starred set: %w", err)
	}
	result.Starred = resp.Starred

	if !initialized {
		if err := c.flag.SetStarSyncInitialized(ctx, true); err != nil {
			logging.Warn().Err(err).Msg("Failed to record first star sync")
		}
	}

	metrics.StarSyncs.WithLabelValues("success").Inc()
	logging.Info().
		Int("to_star", len(result.ToStar)).
		Int("to_unstar", len(result.ToUnstar)).
		Int("starred", len(resp.Starred)).
		Bool("initial", result.Initial).
		Msg("Star sync completed")

	c.publish(ctx, resp.Starred)
	return result, nil
}

// intent returns the sessions whose star state is sent to the server. The
// first sync of a registration also sends every starred session.
func (c *Coordinator) intent(ctx context.Context, initial bool) ([]models.StarState, error) {
	pending, err := c.sessions.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if !initial {
		return pending, nil
	}

	starred, err := c.sessions.ListStarred(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(pending))
	for _, s := range pending {
		seen[s.SessionID] = true
	}
	for _, s := range starred {
		if !seen[s.SessionID] {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// PendingCount returns the number of unconfirmed star operations.
func (c *Coordinator) PendingCount(ctx context.Context) (int, error) {
	n, err := c.sessions.CountPending(ctx)
	if err != nil {
		return 0, err
	}
	metrics.PendingStarOperations.Set(float64(n))
	return n, nil
}

func (c *Coordinator) publish(ctx context.Context, ids []string) {
	n, err := c.PendingCount(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count pending star operations")
	}
	if c.notifier != nil {
		c.notifier.BroadcastStarsChanged(ids, n)
	}
}
