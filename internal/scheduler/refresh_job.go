package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"linka/internal/linker"
	"linka/internal/models"
)

// RefreshJob re-runs aggregation for one provider-sourced link in
// background mode. Links that need user input fail the attempt instead of
// waiting; the stored record carries the outcome.
type RefreshJob struct {
	link    *models.AccountLink
	service *linker.Service
	log     zerolog.Logger
}

func NewRefreshJob(link *models.AccountLink, service *linker.Service, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{link: link, service: service, log: log}
}

func (j *RefreshJob) Execute(ctx context.Context) error {
	status, err := j.service.RefreshLink(ctx, j.link.ID)
	if err != nil {
		// Another attempt got there first. Not a job failure.
		if errors.Is(err, linker.ErrDuplicateAttempt) {
			j.log.Debug().Str("account_link_id", j.link.ID).Msg("refresh skipped, attempt already running")
			return nil
		}
		return fmt.Errorf("refresh of link %s failed: %w", j.link.ID, err)
	}
	j.log.Info().
		Str("account_link_id", j.link.ID).
		Str("status", string(status)).
		Msg("scheduled refresh finished")
	return nil
}

func (j *RefreshJob) UserID() string {
	return j.link.UserID
}

func (j *RefreshJob) Description() string {
	return "account link refresh (" + j.link.ProviderName + ")"
}
