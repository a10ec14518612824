package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conference-schedule/backend/internal/storage/models"
)

// RegistrationRepository persists the single device registration row.
type RegistrationRepository struct {
	BaseRepository
}

// NewRegistrationRepository creates a new registration repository.
func NewRegistrationRepository(db *DB) *RegistrationRepository {
	return &RegistrationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns the current registration. A device that never registered is
// reported as unregistered.
func (r *RegistrationRepository) Get(ctx context.Context) (*models.Registration, error) {
	reg := &models.Registration{}
	err := r.DB().QueryRowContext(ctx, `
		SELECT device_id, account, push_token, status, last_error, updated_at
		FROM registration WHERE id = 1
	`).Scan(&reg.DeviceID, &reg.Account, &reg.PushToken, &reg.Status, &reg.LastError, &reg.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.Registration{Status: models.RegistrationUnregistered}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying registration: %w", err)
	}
	return reg, nil
}

// Save replaces the registration row.
func (r *RegistrationRepository) Save(ctx context.Context, reg *models.Registration) error {
	reg.UpdatedAt = r.Now()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO registration (id, device_id, account, push_token, status, last_error, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			account = excluded.account,
			push_token = excluded.push_token,
			status = excluded.status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, reg.DeviceID, reg.Account, reg.PushToken, reg.Status, reg.LastError, reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving registration: %w", err)
	}
	return nil
}

// Clear drops every piece of cached identity and records status.
func (r *RegistrationRepository) Clear(ctx context.Context, status models.RegistrationStatus, lastErr *string) error {
	return r.Save(ctx, &models.Registration{Status: status, LastError: lastErr})
}
