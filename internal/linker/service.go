package linker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linka/internal/models"
	"linka/internal/notify"
	"linka/internal/provider"
)

var (
	// ErrDuplicateAttempt means the user already has a non-terminal link
	// for this provider. Rejected before anything is written.
	ErrDuplicateAttempt = errors.New("linker: a linking attempt for this provider is already in progress")
	// ErrLinkNotFound means no AccountLink exists for the given id.
	ErrLinkNotFound = errors.New("linker: account link not found")
	// ErrNoPendingForm means the link is not waiting on a login form.
	ErrNoPendingForm = errors.New("linker: link has no pending login form")
)

// Config tunes the per-attempt polling behavior.
type Config struct {
	// PollInterval is the delay between provider snapshot fetches while an
	// attempt is in progress. Defaults to 3 seconds.
	PollInterval time.Duration
	// MaxMFAPolls bounds how many poll cycles an attempt may sit in an MFA
	// status before failing with FAILURE/TIMEOUT. Defaults to 5.
	MaxMFAPolls int
}

func (c *Config) withDefaults() Config {
	out := Config{PollInterval: 3 * time.Second, MaxMFAPolls: 5}
	if c == nil {
		return out
	}
	if c.PollInterval > 0 {
		out.PollInterval = c.PollInterval
	}
	if c.MaxMFAPolls > 0 {
		out.MaxMFAPolls = c.MaxMFAPolls
	}
	return out
}

// Service owns the account-link lifecycle: starting attempts, MFA
// hand-off, background refresh and teardown. The stored AccountLink is the
// only channel through which callers observe outcome.
type Service struct {
	links        models.AccountLinkRepository
	accounts     models.AccountRepository
	transactions models.TransactionRepository
	provider     provider.API
	reconciler   Reconciler
	attempts     *AttemptLogger
	notifier     notify.Messenger
	cfg          Config
	log          zerolog.Logger

	wg sync.WaitGroup
}

func NewService(
	links models.AccountLinkRepository,
	accounts models.AccountRepository,
	transactions models.TransactionRepository,
	providerAPI provider.API,
	reconciler Reconciler,
	attempts *AttemptLogger,
	notifier notify.Messenger,
	cfg *Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		links:        links,
		accounts:     accounts,
		transactions: transactions,
		provider:     providerAPI,
		reconciler:   reconciler,
		attempts:     attempts,
		notifier:     notifier,
		cfg:          cfg.withDefaults(),
		log:          log.With().Str("component", "linker").Logger(),
	}
}

// StartLink begins a linking attempt for (userID, providerID) with the
// user's credential form, creating or reusing the AccountLink record. The
// attempt itself runs in the background; callers poll the stored record.
// A second attempt while one is non-terminal fails with ErrDuplicateAttempt
// and writes nothing.
func (s *Service) StartLink(ctx context.Context, userID, providerID, providerName string, form *provider.LoginForm) (*models.AccountLink, error) {
	existing, err := s.links.FindByUserAndProvider(ctx, userID, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing link: %w", err)
	}
	if existing != nil && !existing.Status.Terminal() {
		return nil, ErrDuplicateAttempt
	}

	now := time.Now().UTC()
	link := existing
	if link == nil {
		link = &models.AccountLink{
			ID:            uuid.NewString(),
			UserID:        userID,
			ProviderID:    providerID,
			ProviderName:  providerName,
			SourceOfTruth: models.EmptySource(),
			CreatedAt:     now,
		}
	}
	link.Status = models.LinkStatusInitializing
	link.UpdatedAt = now
	if err := s.links.Set(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to persist link: %w", err)
	}

	s.spawn(link, ModeManual, form)
	return link, nil
}

// RefreshLink re-runs aggregation for an existing link in background mode
// and blocks until the attempt terminates. MFA requests fail the attempt
// with FAILURE/USER_INPUT_REQUEST_IN_BACKGROUND instead of waiting on the
// user. Used by the scheduled refresh jobs.
func (s *Service) RefreshLink(ctx context.Context, accountLinkID string) (models.LinkStatus, error) {
	link, err := s.links.GetByID(ctx, accountLinkID)
	if err != nil {
		return "", fmt.Errorf("failed to load link: %w", err)
	}
	if link == nil {
		return "", ErrLinkNotFound
	}
	if !link.Status.Terminal() {
		return "", ErrDuplicateAttempt
	}
	if _, ok := link.ProviderAccountID(); !ok {
		return "", fmt.Errorf("link %s has no provider account to refresh", link.ID)
	}
	return s.performLink(ctx, link, ModeAuto, nil)
}

// SubmitLoginForm answers the MFA form the provider is waiting on. The
// running poll loop observes the provider-side effect on its next cycle.
func (s *Service) SubmitLoginForm(ctx context.Context, accountLinkID string, form *provider.LoginForm) error {
	link, err := s.links.GetByID(ctx, accountLinkID)
	if err != nil {
		return fmt.Errorf("failed to load link: %w", err)
	}
	if link == nil {
		return ErrLinkNotFound
	}
	if !link.Status.MFA() {
		return ErrNoPendingForm
	}
	paID, ok := link.ProviderAccountID()
	if !ok {
		return ErrNoPendingForm
	}
	if err := s.provider.SubmitLoginForm(ctx, link.UserID, paID, form); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}
	return nil
}

// GetLink returns the stored AccountLink, or ErrLinkNotFound.
func (s *Service) GetLink(ctx context.Context, accountLinkID string) (*models.AccountLink, error) {
	link, err := s.links.GetByID(ctx, accountLinkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// DeleteLink tears down a link. For provider-sourced links the order is
// strict: remote provider-account first (the provider cascades its own
// children), then local transactions, then accounts, then the link record.
// Anything else would leave orphan rows in a store without foreign keys.
func (s *Service) DeleteLink(ctx context.Context, accountLinkID string) error {
	link, err := s.links.GetByID(ctx, accountLinkID)
	if err != nil {
		return fmt.Errorf("failed to load link: %w", err)
	}
	if link == nil {
		return ErrLinkNotFound
	}

	if paID, ok := link.ProviderAccountID(); ok {
		if err := s.provider.DeleteProviderAccount(ctx, link.UserID, paID); err != nil && !provider.IsNotFound(err) {
			return fmt.Errorf("failed to delete provider account: %w", err)
		}

		accounts, err := s.accounts.ListByLinkID(ctx, link.ID)
		if err != nil {
			return fmt.Errorf("failed to list link accounts: %w", err)
		}
		deletes := make([]string, 0, len(accounts))
		for _, acct := range accounts {
			if err := s.transactions.DeleteByAccountID(ctx, acct.ID); err != nil {
				return fmt.Errorf("failed to delete transactions for account %s: %w", acct.ID, err)
			}
			deletes = append(deletes, acct.ID)
		}
		if len(deletes) > 0 {
			if err := s.accounts.ApplyDiff(ctx, models.AccountDiff{Deletes: deletes}); err != nil {
				return fmt.Errorf("failed to delete link accounts: %w", err)
			}
		}
	}

	if err := s.links.Delete(ctx, link.ID); err != nil {
		return fmt.Errorf("failed to delete link record: %w", err)
	}
	s.log.Info().Str("account_link_id", link.ID).Msg("link deleted")
	return nil
}

// Wait blocks until all background attempts spawned by StartLink finish.
// Called during shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) spawn(link *models.AccountLink, mode Mode, form *provider.LoginForm) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Background attempts outlive the request that started them.
		ctx := context.Background()
		if _, err := s.performLink(ctx, link, mode, form); err != nil {
			s.log.Error().Err(err).Str("account_link_id", link.ID).Msg("linking attempt failed")
		}
	}()
}

// performLink runs one attempt inside an error boundary: any uncaught
// failure, panics included, force-sets FAILURE/INTERNAL_SERVICE_FAILURE so
// no attempt is ever left silently in progress.
func (s *Service) performLink(ctx context.Context, link *models.AccountLink, mode Mode, form *provider.LoginForm) (final models.LinkStatus, err error) {
	log := s.log.With().
		Str("account_link_id", link.ID).
		Str("user_id", link.UserID).
		Stringer("mode", mode).
		Logger()

	attemptID := s.attempts.Start(ctx, link)

	m := &machine{
		link:         link,
		mode:         mode,
		form:         form,
		provider:     s.provider,
		links:        s.links,
		reconciler:   s.reconciler,
		attempts:     s.attempts,
		attemptID:    attemptID,
		notifier:     s.notifier,
		pollInterval: s.cfg.PollInterval,
		maxMFAPolls:  s.cfg.MaxMFAPolls,
		log:          log,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("linking attempt panicked: %v", r)
			final = models.LinkStatusInternalServiceFailure
			m.forceFail(ctx)
		}
	}()

	final, err = m.run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("linking attempt ended in error state")
		return final, err
	}
	log.Info().Str("status", string(final)).Msg("linking attempt finished")
	return final, nil
}
