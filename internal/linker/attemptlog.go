package linker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linka/internal/models"
)

// AttemptLogger records the linking audit trail. Every method is
// best-effort: storage failures are logged and swallowed, never surfaced,
// so the audit trail can never affect a linking outcome. A nil
// *AttemptLogger is valid and does nothing.
type AttemptLogger struct {
	repo models.AttemptLogRepository
	log  zerolog.Logger
}

func NewAttemptLogger(repo models.AttemptLogRepository, log zerolog.Logger) *AttemptLogger {
	return &AttemptLogger{repo: repo, log: log.With().Str("component", "attempt_log").Logger()}
}

// Start records the beginning of an attempt and returns its id.
func (a *AttemptLogger) Start(ctx context.Context, link *models.AccountLink) string {
	if a == nil || a.repo == nil {
		return ""
	}
	now := time.Now().UTC()
	entry := &models.AttemptLogEntry{
		ID:            uuid.NewString(),
		AccountLinkID: link.ID,
		UserID:        link.UserID,
		Status:        link.Status,
		IsRunning:     true,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.repo.Insert(ctx, entry); err != nil {
		a.log.Warn().Err(err).Str("account_link_id", link.ID).Msg("failed to record attempt start")
		return ""
	}
	return entry.ID
}

// Progress records a status transition for a running attempt.
func (a *AttemptLogger) Progress(ctx context.Context, attemptID string, status models.LinkStatus) {
	if a == nil || a.repo == nil || attemptID == "" {
		return
	}
	if err := a.repo.Update(ctx, attemptID, status, true); err != nil {
		a.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("failed to record attempt progress")
	}
}

// Stop records the end of an attempt and clears its running flag.
func (a *AttemptLogger) Stop(ctx context.Context, attemptID string, status models.LinkStatus) {
	if a == nil || a.repo == nil || attemptID == "" {
		return
	}
	if err := a.repo.Update(ctx, attemptID, status, false); err != nil {
		a.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("failed to record attempt stop")
	}
}
