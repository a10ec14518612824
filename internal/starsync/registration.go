package starsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
	"github.com/conference-schedule/backend/internal/remote"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// RegistrationError reports a failed register or unregister call. The local
// identity has been cleared by the time it is returned.
type RegistrationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// RegistrationStore persists the device registration.
type RegistrationStore interface {
	Get(ctx context.Context) (*models.Registration, error)
	Save(ctx context.Context, reg *models.Registration) error
	Clear(ctx context.Context, status models.RegistrationStatus, lastErr *string) error
}

// RegistrationClient is the remote device registration endpoint.
type RegistrationClient interface {
	Register(ctx context.Context, reg remote.DeviceRegistration) error
	Unregister(ctx context.Context, reg remote.DeviceRegistration) error
}

// RegistrationNotifier receives registration status changes.
type RegistrationNotifier interface {
	BroadcastRegistrationChanged(status, lastError string)
}

// Registrar drives the registration state machine:
// unregistered -> registering -> registered -> unregistering -> unregistered,
// with any step able to fall to error.
type Registrar struct {
	store    RegistrationStore
	client   RegistrationClient
	flag     InitFlag
	notifier RegistrationNotifier

	mu sync.Mutex
}

// NewRegistrar creates a registrar. notifier may be nil.
func NewRegistrar(store RegistrationStore, client RegistrationClient, flag InitFlag, notifier RegistrationNotifier) *Registrar {
	return &Registrar{store: store, client: client, flag: flag, notifier: notifier}
}

// State returns the current registration.
func (r *Registrar) State(ctx context.Context) (*models.Registration, error) {
	return r.store.Get(ctx)
}

// Register records pushToken for account with the remote service. An existing
// device id is kept so re-registration refreshes the token.
func (r *Registrar) Register(ctx context.Context, account, pushToken string) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pushToken = strings.TrimSpace(pushToken)
	if pushToken == "" {
		return nil, &RegistrationError{Op: "register", Reason: "push token is required"}
	}

	current, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	deviceID := current.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	reg := &models.Registration{
		DeviceID:  deviceID,
		Account:   account,
		PushToken: pushToken,
		Status:    models.RegistrationRegistering,
	}
	if err := r.transition(ctx, reg); err != nil {
		return nil, err
	}

	err = r.client.Register(ctx, remote.DeviceRegistration{
		DeviceID:  deviceID,
		Account:   account,
		PushToken: pushToken,
	})
	if err != nil {
		return nil, r.fail(ctx, "register", err)
	}

	reg.Status = models.RegistrationRegistered
	if err := r.transition(ctx, reg); err != nil {
		return nil, err
	}
	logging.Info().Str("device_id", deviceID).Msg("Device registered")
	return reg, nil
}

// Unregister removes the device from the remote service and clears all local
// identity.
func (r *Registrar) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.Get(ctx)
	if err != nil {
		return err
	}
	if !current.IsRegistered() {
		return ErrNotRegistered
	}

	current.Status = models.RegistrationUnregistering
	if err := r.transition(ctx, current); err != nil {
		return err
	}

	err = r.client.Unregister(ctx, remote.DeviceRegistration{
		DeviceID:  current.DeviceID,
		Account:   current.Account,
		PushToken: current.PushToken,
	})
	if err != nil {
		return r.fail(ctx, "unregister", err)
	}

	if err := r.clear(ctx, models.RegistrationUnregistered, nil); err != nil {
		return err
	}
	logging.Info().Str("device_id", current.DeviceID).Msg("Device unregistered")
	return nil
}

func (r *Registrar) transition(ctx context.Context, reg *models.Registration) error {
	reg.LastError = nil
	if err := r.store.Save(ctx, reg); err != nil {
		return fmt.Errorf("saving registration: %w", err)
	}
	r.notify(reg.Status, "")
	return nil
}

// fail clears identity, records the error status and wraps cause.
func (r *Registrar) fail(ctx context.Context, op string, cause error) error {
	rerr := &RegistrationError{Op: op, Err: cause}
	var terr *remote.TransportError
	if errors.As(cause, &terr) {
		rerr.Reason = terr.Reason
	}

	msg := rerr.Error()
	if err := r.clear(ctx, models.RegistrationError, &msg); err != nil {
		logging.Error().Err(err).Msg("Failed to clear registration state")
	}
	logging.Warn().Err(cause).Str("op", op).Msg("Registration failed, identity cleared")
	return rerr
}

// clear drops identity and resets the first-sync flag so the next
// registration starts from a full intent upload.
func (r *Registrar) clear(ctx context.Context, status models.RegistrationStatus, lastErr *string) error {
	if err := r.store.Clear(ctx, status, lastErr); err != nil {
		return fmt.Errorf("clearing registration: %w", err)
	}
	if err := r.flag.SetStarSyncInitialized(ctx, false); err != nil {
		logging.Warn().Err(err).Msg("Failed to reset star sync flag")
	}
	var msg string
	if lastErr != nil {
		msg = *lastErr
	}
	r.notify(status, msg)
	return nil
}

func (r *Registrar) notify(status models.RegistrationStatus, lastError string) {
	metrics.RegistrationTransitions.WithLabelValues(string(status)).Inc()
	if r.notifier != nil {
		r.notifier.BroadcastRegistrationChanged(string(status), lastError)
	}
}
