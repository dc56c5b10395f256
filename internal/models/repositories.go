package models

import (
	"context"
	"time"
)

// AccountLinkRepository defines data access for AccountLinks. The backing
// store is a document store: Set is a whole-document write with
// last-writer-wins semantics, and reads see prior writes to the same
// document.
type AccountLinkRepository interface {
	// GetByID returns the link, or nil when no such document exists.
	GetByID(ctx context.Context, id string) (*AccountLink, error)
	// FindByUserAndProvider returns the user's link for a provider, or nil.
	FindByUserAndProvider(ctx context.Context, userID, providerID string) (*AccountLink, error)
	Set(ctx context.Context, link *AccountLink) error
	Delete(ctx context.Context, id string) error
	// ListRefreshable returns links eligible for a background refresh:
	// provider-sourced and not currently mid-attempt.
	ListRefreshable(ctx context.Context) ([]*AccountLink, error)
}

// AccountRepository defines data access for Accounts.
type AccountRepository interface {
	ListByLinkID(ctx context.Context, linkID string) ([]*Account, error)
	// ApplyDiff commits the reconciler's create/update/delete set as
	// batched writes.
	ApplyDiff(ctx context.Context, diff AccountDiff) error
}

// TransactionRepository defines data access for Transactions.
type TransactionRepository interface {
	// LatestByAccountID returns the most recent transaction for an
	// account, or nil when the account has none.
	LatestByAccountID(ctx context.Context, accountID string) (*Transaction, error)
	// ExistingIDs reports which of ids are already stored for an account.
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	InsertBatch(ctx context.Context, txns []*Transaction) error
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// AttemptLogEntry is one row of the best-effort linking audit trail.
// External reporting tools query is_running to find stuck attempts.
type AttemptLogEntry struct {
	ID            string
	AccountLinkID string
	UserID        string
	Status        LinkStatus
	IsRunning     bool
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// AttemptLogRepository defines data access for the attempt audit trail.
// Implementations may fail; callers must swallow those failures.
type AttemptLogRepository interface {
	Insert(ctx context.Context, entry *AttemptLogEntry) error
	// Update records the latest status and running flag for an attempt.
	Update(ctx context.Context, attemptID string, status LinkStatus, isRunning bool) error
}
