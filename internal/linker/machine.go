package linker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"linka/internal/models"
	"linka/internal/notify"
	"linka/internal/provider"
)

// Reconciler syncs local accounts and transactions from the provider
// snapshot once a linking attempt succeeds.
type Reconciler interface {
	ReconcileLink(ctx context.Context, link *models.AccountLink) error
}

// stateKind enumerates the closed set of machine states.
type stateKind int

const (
	stateInitializing stateKind = iota
	statePolling
	stateSyncWithSource
	stateUpdateAndTerminate
	stateTerminate
	stateError
)

func (k stateKind) String() string {
	switch k {
	case stateInitializing:
		return "initializing"
	case statePolling:
		return "polling"
	case stateSyncWithSource:
		return "sync_with_source"
	case stateUpdateAndTerminate:
		return "update_and_terminate"
	case stateTerminate:
		return "terminate"
	default:
		return "error"
	}
}

// state is one node of the machine plus its payload: the derived link
// status and the provider snapshot it was derived from. Error carries the
// failure instead.
type state struct {
	kind     stateKind
	status   models.LinkStatus
	snapshot *provider.ProviderAccount
	err      error
}

// event is what a state's entry effect produced: a fresh provider
// snapshot, a terminal failure status (timeout, provider outage), or an
// internal error. Exactly one field is set.
type event struct {
	snapshot *provider.ProviderAccount
	fail     models.LinkStatus
	err      error
}

// next computes the successor state. It is pure: all I/O happens in the
// entry effects, which produce the event fed back in here.
func next(mode Mode, s state, ev event) state {
	switch {
	case ev.err != nil:
		return state{kind: stateError, err: ev.err}
	case ev.fail != "":
		return state{kind: stateUpdateAndTerminate, status: ev.fail, snapshot: s.snapshot}
	}

	switch s.kind {
	case stateInitializing, statePolling:
		derived := deriveStatus(ev.snapshot, mode)
		switch {
		case derived == models.LinkStatusSuccess:
			return state{kind: stateSyncWithSource, snapshot: ev.snapshot}
		case derived.Failure():
			return state{kind: stateUpdateAndTerminate, status: derived, snapshot: ev.snapshot}
		default:
			return state{kind: statePolling, status: derived, snapshot: ev.snapshot}
		}
	case stateSyncWithSource:
		return state{kind: stateUpdateAndTerminate, status: models.LinkStatusSuccess, snapshot: s.snapshot}
	case stateUpdateAndTerminate:
		return state{kind: stateTerminate, status: s.status}
	default:
		// Terminate and Error have no successor.
		return s
	}
}

// machine drives one linking attempt end to end. It owns the link record
// for the duration of the attempt: every status transition is written
// through a read-current, compute-next, write cycle, and a stored status
// the machine did not write itself makes it stop instead of overwriting.
type machine struct {
	link       *models.AccountLink
	mode       Mode
	form       *provider.LoginForm
	provider   provider.API
	links      models.AccountLinkRepository
	reconciler Reconciler
	attempts   *AttemptLogger
	attemptID  string
	notifier   notify.Messenger

	pollInterval time.Duration
	maxMFAPolls  int

	lastPersisted models.LinkStatus
	mfaPolls      int
	notified      bool
	log           zerolog.Logger
}

// run executes the attempt until a terminal state and returns the final
// status. A non-nil error means the machine could not even record a
// terminal status; the caller's error boundary owns that case.
func (m *machine) run(ctx context.Context) (models.LinkStatus, error) {
	st := state{kind: stateInitializing}
	for {
		m.log.Debug().Stringer("state", st.kind).Str("status", string(st.status)).Msg("link state entered")

		switch st.kind {
		case stateInitializing:
			st = next(m.mode, st, m.enterInitializing(ctx))

		case statePolling:
			ev, superseded := m.enterPolling(ctx, st)
			if superseded {
				m.log.Info().Msg("link record changed by another actor, stopping attempt")
				m.attempts.Stop(ctx, m.attemptID, m.lastPersisted)
				return m.lastPersisted, nil
			}
			st = next(m.mode, st, ev)

		case stateSyncWithSource:
			st = next(m.mode, st, m.enterSyncWithSource(ctx, st))

		case stateUpdateAndTerminate:
			if err := m.persistStatus(ctx, st.status, st.snapshot); err != nil {
				st = state{kind: stateError, err: err}
				continue
			}
			st = next(m.mode, st, event{})

		case stateTerminate:
			m.attempts.Stop(ctx, m.attemptID, st.status)
			return st.status, nil

		case stateError:
			// Last line of defense inside the machine: record the failure
			// so the attempt is never left in progress.
			m.forceFail(ctx)
			return models.LinkStatusInternalServiceFailure, st.err
		}
	}
}

// enterInitializing starts (or re-runs) aggregation at the provider and
// persists the resulting snapshot.
func (m *machine) enterInitializing(ctx context.Context) event {
	req := provider.LoginRequest{LoginForm: m.form}
	if paID, ok := m.link.ProviderAccountID(); ok {
		req.ProviderAccountID = paID
	} else {
		req.ProviderID = provider.RemoteID(m.link.ProviderID)
	}

	pa, err := m.provider.Login(ctx, m.link.UserID, req)
	if err != nil {
		if fail, ok := failureFor(err); ok {
			return event{fail: fail}
		}
		return event{err: fmt.Errorf("provider login failed: %w", err)}
	}
	if pa == nil {
		return event{err: fmt.Errorf("provider reported login success but returned no provider account")}
	}

	if err := m.persistStatus(ctx, models.LinkStatusInitializing, pa); err != nil {
		return event{err: err}
	}
	return event{snapshot: pa}
}

// enterPolling persists the derived status, waits one poll interval and
// re-fetches the provider snapshot. The second return value is true when
// the attempt was superseded externally (record deleted or status changed
// by another actor) and the machine must stop without writing.
func (m *machine) enterPolling(ctx context.Context, st state) (event, bool) {
	stored, err := m.links.GetByID(ctx, m.link.ID)
	if err != nil {
		return event{err: fmt.Errorf("failed to re-read link record: %w", err)}, false
	}
	if stored == nil {
		return event{}, true
	}
	if m.lastPersisted != "" && stored.Status != m.lastPersisted {
		return event{}, true
	}

	if err := m.persistStatus(ctx, st.status, st.snapshot); err != nil {
		return event{err: err}, false
	}

	if st.status.MFA() {
		m.mfaPolls++
		if m.mfaPolls > m.maxMFAPolls {
			return event{fail: models.LinkStatusTimeout}, false
		}
		if st.status == models.LinkStatusPendingUserInput {
			m.notifyMFAPending(ctx)
		}
	} else {
		m.mfaPolls = 0
	}

	if err := m.waitPoll(ctx); err != nil {
		return event{err: err}, false
	}

	paID, ok := m.link.ProviderAccountID()
	if !ok {
		return event{err: fmt.Errorf("polling link %s has no provider account", m.link.ID)}, false
	}
	pa, err := m.provider.FetchProviderAccount(ctx, m.link.UserID, paID)
	if err != nil {
		if provider.IsNotFound(err) {
			// Deleted remotely by another actor mid-poll.
			return event{}, true
		}
		if fail, ok := failureFor(err); ok {
			return event{fail: fail}, false
		}
		return event{err: fmt.Errorf("failed to fetch provider account: %w", err)}, false
	}
	return event{snapshot: pa}, false
}

// enterSyncWithSource marks the link as downloading and runs the
// reconciler against the final snapshot.
func (m *machine) enterSyncWithSource(ctx context.Context, st state) event {
	if err := m.persistStatus(ctx, models.LinkStatusDownloadingFromSource, st.snapshot); err != nil {
		return event{err: err}
	}
	if err := m.reconciler.ReconcileLink(ctx, m.link); err != nil {
		return event{err: fmt.Errorf("reconciliation failed: %w", err)}
	}
	return event{snapshot: st.snapshot}
}

// persistStatus writes the status and snapshot onto the link record.
// Last-writer-wins; conflicting writers are handled by the re-read in
// enterPolling rather than a compare-and-swap.
func (m *machine) persistStatus(ctx context.Context, status models.LinkStatus, snapshot *provider.ProviderAccount) error {
	m.link.Status = status
	if snapshot != nil {
		m.link.SourceOfTruth = models.ProviderSource(snapshot)
	}
	m.link.UpdatedAt = time.Now().UTC()
	if err := m.links.Set(ctx, m.link); err != nil {
		return fmt.Errorf("failed to persist link status %s: %w", status, err)
	}
	m.lastPersisted = status
	m.attempts.Progress(ctx, m.attemptID, status)
	return nil
}

// waitPoll sleeps one poll interval. The timer is stopped on every exit so
// no callback outlives the state that scheduled it.
func (m *machine) waitPoll(ctx context.Context) error {
	t := time.NewTimer(m.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forceFail records FAILURE/INTERNAL_SERVICE_FAILURE, best-effort. It
// detaches from ctx so a cancelled attempt can still record its failure.
func (m *machine) forceFail(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := m.persistStatus(ctx, models.LinkStatusInternalServiceFailure, nil); err != nil {
		m.log.Error().Err(err).Msg("failed to record terminal failure status")
	}
	m.attempts.Stop(ctx, m.attemptID, models.LinkStatusInternalServiceFailure)
}

func (m *machine) notifyMFAPending(ctx context.Context) {
	if m.notified || m.notifier == nil {
		return
	}
	m.notified = true
	err := m.notifier.Send(ctx, m.link.UserID,
		"Action needed",
		fmt.Sprintf("%s needs another verification step to finish linking.", m.link.ProviderName),
		notify.MFAPendingData(m.link.ID))
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to send MFA notification")
	}
}

// failureFor maps a provider error to a terminal failure status, when the
// error kind has one. Everything else escalates to the Error state.
func failureFor(err error) (models.LinkStatus, bool) {
	switch provider.KindOf(err) {
	case provider.KindAuthFailure:
		return models.LinkStatusBadCredentials, true
	case provider.KindMFAFailure:
		return models.LinkStatusMFAFailure, true
	case provider.KindTransient:
		return models.LinkStatusExternalServiceFailure, true
	}
	return "", false
}
