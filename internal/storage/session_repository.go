package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/conference-schedule/backend/internal/storage/models"
)

// SessionRepository provides access to sessions and their star state.
type SessionRepository struct {
	BaseRepository
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const sessionColumns = `session_id, title, abstract, track_id, room_id, speaker_ids,
	experience, kind, presentation_url, starred, operation_pending, updated`

func scanSession(row interface{ Scan(...any) error }) (models.Session, error) {
	var s models.Session
	var speakers string
	err := row.Scan(
		&s.ID, &s.Title, &s.Abstract, &s.TrackID, &s.RoomID, &speakers,
		&s.Experience, &s.Kind, &s.PresentationURL, &s.Starred, &s.OperationPending, &s.Updated,
	)
	if err != nil {
		return s, err
	}
	s.SpeakerIDs = []string{}
	if speakers != "" {
		s.SpeakerIDs = strings.Split(speakers, ",")
	}
	return s, nil
}

// GetByID retrieves a live session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ? AND deleted = 0", id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// List returns live sessions, optionally only starred ones.
func (r *SessionRepository) List(ctx context.Context, starredOnly bool) ([]models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE deleted = 0"
	if starredOnly {
		query += " AND starred = 1"
	}
	query += " ORDER BY title"

	rows, err := r.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetStarred records a user star action: the flag flips immediately and the
// session is marked pending until the remote service confirms it.
func (r *SessionRepository) SetStarred(ctx context.Context, id string, starred bool) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE sessions SET starred = ?, operation_pending = 1, updated = ?
		WHERE session_id = ? AND deleted = 0
	`, boolToInt(starred), r.NowMillis(), id)
	if err != nil {
		return fmt.Errorf("updating star: %w", err)
	}
	return requireRow(result)
}

// ApplyPush flips the star flag from a push message. The pending flag is left
// as is.
func (r *SessionRepository) ApplyPush(ctx context.Context, id string, starred bool) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE sessions SET starred = ?, updated = ?
		WHERE session_id = ? AND deleted = 0
	`, boolToInt(starred), r.NowMillis(), id)
	if err != nil {
		return fmt.Errorf("applying push: %w", err)
	}
	return requireRow(result)
}

// ListPending returns the star state of every session with an unconfirmed
// star operation.
func (r *SessionRepository) ListPending(ctx context.Context) ([]models.StarState, error) {
	return r.listStarStates(ctx, "operation_pending = 1")
}

// ListStarred returns the star state of every starred session.
func (r *SessionRepository) ListStarred(ctx context.Context) ([]models.StarState, error) {
	return r.listStarStates(ctx, "starred = 1")
}

func (r *SessionRepository) listStarStates(ctx context.Context, where string) ([]models.StarState, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT session_id, starred, operation_pending FROM sessions
		WHERE deleted = 0 AND `+where+`
		ORDER BY session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying star states: %w", err)
	}
	defer rows.Close()

	var states []models.StarState
	for rows.Next() {
		var s models.StarState
		if err := rows.Scan(&s.SessionID, &s.Starred, &s.Pending); err != nil {
			return nil, fmt.Errorf("scanning star state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// CountPending returns the number of sessions with an unconfirmed star operation.
func (r *SessionRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE deleted = 0 AND operation_pending = 1").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending sessions: %w", err)
	}
	return n, nil
}

// ReplaceStarred makes starredIDs the exact starred set and clears every
// pending flag, atomically. Ids unknown locally are ignored.
func (r *SessionRepository) ReplaceStarred(ctx context.Context, starredIDs []string) error {
	now := r.NowMillis()
	return r.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE sessions SET starred = 0 WHERE starred = 1"); err != nil {
			return fmt.Errorf("clearing stars: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, "UPDATE sessions SET starred = 1, updated = ? WHERE session_id = ?")
		if err != nil {
			return fmt.Errorf("preparing star update: %w", err)
		}
		defer stmt.Close()

		for _, id := range starredIDs {
			if _, err := stmt.ExecContext(ctx, now, id); err != nil {
				return fmt.Errorf("starring %s: %w", id, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "UPDATE sessions SET operation_pending = 0 WHERE operation_pending = 1"); err != nil {
			return fmt.Errorf("clearing pending flags: %w", err)
		}
		return nil
	})
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
