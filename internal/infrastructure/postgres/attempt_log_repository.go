package postgres

import (
	"context"
	"fmt"

	"linka/internal/models"
)

// AttemptLogRepository implements models.AttemptLogRepository on the
// link_attempts table.
//
//	CREATE TABLE link_attempts (
//	    id               UUID PRIMARY KEY,
//	    account_link_id  TEXT NOT NULL,
//	    user_id          TEXT NOT NULL,
//	    status           TEXT NOT NULL,
//	    is_running       BOOLEAN NOT NULL,
//	    started_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
type AttemptLogRepository struct {
	db *DB
}

var _ models.AttemptLogRepository = (*AttemptLogRepository)(nil)

func NewAttemptLogRepository(db *DB) *AttemptLogRepository {
	return &AttemptLogRepository{db: db}
}

func (r *AttemptLogRepository) Insert(ctx context.Context, entry *models.AttemptLogEntry) error {
	query := `
		INSERT INTO link_attempts (id, account_link_id, user_id, status, is_running, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.AccountLinkID, entry.UserID,
		string(entry.Status), entry.IsRunning, entry.StartedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attempt %s: %w", entry.ID, err)
	}
	return nil
}

func (r *AttemptLogRepository) Update(ctx context.Context, attemptID string, status models.LinkStatus, isRunning bool) error {
	query := `
		UPDATE link_attempts
		SET status = $2, is_running = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, attemptID, string(status), isRunning)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s: %w", attemptID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of attempt %s: %w", attemptID, err)
	}
	if rows == 0 {
		return fmt.Errorf("attempt %s not found", attemptID)
	}
	return nil
}
