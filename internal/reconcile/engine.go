// Package reconcile diffs the provider's account/transaction snapshot
// against local storage and applies the minimal create/update/delete set.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"linka/internal/models"
	"linka/internal/provider"
)

// Source is the slice of the provider boundary the reconciler needs.
// Satisfied by *provider.Gateway, so every remote fetch goes through the
// permit gate.
type Source interface {
	FetchAccounts(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error)
	FetchTransactions(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error)
}

// Engine syncs a link's accounts and transactions from the provider.
type Engine struct {
	source       Source
	accounts     models.AccountRepository
	transactions models.TransactionRepository
	log          zerolog.Logger
}

func NewEngine(source Source, accounts models.AccountRepository, transactions models.TransactionRepository, log zerolog.Logger) *Engine {
	return &Engine{
		source:       source,
		accounts:     accounts,
		transactions: transactions,
		log:          log.With().Str("component", "reconcile").Logger(),
	}
}

// ReconcileLink brings local state in line with the provider's snapshot
// for one link. Accounts are diffed and applied as one batched write;
// transaction sync then runs as two concurrent sub-passes: purging
// transactions of deleted accounts, and appending new transactions for the
// accounts that remain. Re-running against an unchanged snapshot writes
// nothing.
func (e *Engine) ReconcileLink(ctx context.Context, link *models.AccountLink) error {
	paID, ok := link.ProviderAccountID()
	if !ok {
		return fmt.Errorf("link %s has no provider account to reconcile", link.ID)
	}

	remote, err := e.source.FetchAccounts(ctx, link.UserID, paID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote accounts: %w", err)
	}
	local, err := e.accounts.ListByLinkID(ctx, link.ID)
	if err != nil {
		return fmt.Errorf("failed to list local accounts: %w", err)
	}

	diff, kept := diffAccounts(link, local, remote)
	if !diff.Empty() {
		if err := e.accounts.ApplyDiff(ctx, diff); err != nil {
			return fmt.Errorf("failed to apply account diff: %w", err)
		}
	}
	e.log.Info().
		Str("account_link_id", link.ID).
		Int("created", len(diff.Creates)).
		Int("updated", len(diff.Updates)).
		Int("deleted", len(diff.Deletes)).
		Msg("account diff applied")

	// Transaction sync only starts after the account batch has committed.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Deletion is implied by the parent account's deletion; no remote
		// call is needed. This is the only path that removes transactions.
		for _, accountID := range diff.Deletes {
			if err := e.transactions.DeleteByAccountID(ctx, accountID); err != nil {
				return fmt.Errorf("failed to delete transactions for account %s: %w", accountID, err)
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, acct := range kept {
			if err := e.syncAccountTransactions(ctx, link, acct); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

// syncAccountTransactions appends the transactions the provider reports
// since the latest locally known one. The provider rounds dates to the
// day, so the fetch window overlaps the latest known day; already-known
// ids are filtered out before insert.
func (e *Engine) syncAccountTransactions(ctx context.Context, link *models.AccountLink, acct *models.Account) error {
	latest, err := e.transactions.LatestByAccountID(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("failed to load latest transaction for account %s: %w", acct.ID, err)
	}
	var since *time.Time
	if latest != nil {
		// Transactions are immutable and never backdated by the provider;
		// anything older than this date is already stored. A provider that
		// ever backdates would break this window.
		t := latest.PostedAt
		since = &t
	}

	remote, err := e.source.FetchTransactions(ctx, link.UserID, provider.RemoteID(acct.RemoteID), since)
	if err != nil {
		return fmt.Errorf("failed to fetch remote transactions for account %s: %w", acct.ID, err)
	}
	if len(remote) == 0 {
		return nil
	}

	ids := make([]string, 0, len(remote))
	for _, rt := range remote {
		ids = append(ids, rt.ID.String())
	}
	existing, err := e.transactions.ExistingIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check existing transactions: %w", err)
	}

	now := time.Now().UTC()
	inserts := make([]*models.Transaction, 0, len(remote))
	for _, rt := range remote {
		if existing[rt.ID.String()] {
			continue
		}
		inserts = append(inserts, &models.Transaction{
			ID:            rt.ID.String(),
			UserID:        link.UserID,
			AccountID:     acct.ID,
			AccountLinkID: link.ID,
			Amount:        rt.Amount,
			Currency:      rt.Currency,
			Description:   rt.Description,
			Category:      rt.Category,
			PostedAt:      rt.Date.Time,
			CreatedAt:     now,
		})
	}
	if len(inserts) == 0 {
		return nil
	}
	if err := e.transactions.InsertBatch(ctx, inserts); err != nil {
		return fmt.Errorf("failed to insert transactions for account %s: %w", acct.ID, err)
	}
	e.log.Info().
		Str("account_id", acct.ID).
		Int("inserted", len(inserts)).
		Msg("transactions appended")
	return nil
}

// diffAccounts classifies local accounts as UPDATE or DELETE and unmatched
// remote accounts as CREATE. Matching is by the provider's account id
// compared as a normalized string. Updates carry only accounts whose
// remote fields actually changed; kept returns every account still present
// remotely, changed or not, for the transaction pass.
func diffAccounts(link *models.AccountLink, local []*models.Account, remote []provider.RemoteAccount) (models.AccountDiff, []*models.Account) {
	remoteByID := make(map[string]provider.RemoteAccount, len(remote))
	for _, ra := range remote {
		remoteByID[ra.ID.String()] = ra
	}

	var diff models.AccountDiff
	kept := make([]*models.Account, 0, len(remote))
	matched := make(map[string]bool, len(local))
	now := time.Now().UTC()

	for _, acct := range local {
		ra, ok := remoteByID[acct.RemoteID]
		if !ok {
			diff.Deletes = append(diff.Deletes, acct.ID)
			continue
		}
		matched[acct.RemoteID] = true
		if accountChanged(acct, ra) {
			updated := *acct
			updated.Name = ra.Name
			updated.AccountType = ra.AccountType
			updated.Currency = ra.Currency
			updated.Balance = ra.Balance
			updated.UpdatedAt = now
			diff.Updates = append(diff.Updates, &updated)
			kept = append(kept, &updated)
		} else {
			kept = append(kept, acct)
		}
	}

	for _, ra := range remote {
		if matched[ra.ID.String()] {
			continue
		}
		created := &models.Account{
			ID:            uuid.NewString(),
			UserID:        link.UserID,
			AccountLinkID: link.ID,
			RemoteID:      ra.ID.String(),
			Name:          ra.Name,
			AccountType:   ra.AccountType,
			Currency:      ra.Currency,
			Balance:       ra.Balance,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		diff.Creates = append(diff.Creates, created)
		kept = append(kept, created)
	}

	return diff, kept
}

func accountChanged(acct *models.Account, ra provider.RemoteAccount) bool {
	return acct.Name != ra.Name ||
		acct.AccountType != ra.AccountType ||
		acct.Currency != ra.Currency ||
		!acct.Balance.Equal(ra.Balance)
}
