package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a financial account owned by a user, attached to exactly one
// AccountLink through the provider-account that originated it. Created,
// updated and deleted exclusively by the reconciler.
type Account struct {
	ID            string `json:"id"`
	UserID        string `json:"userRef"`
	AccountLinkID string `json:"accountLinkRef"`
	// RemoteID is the provider-account-scoped account id, normalized to a
	// string. It is the matching key during reconciliation.
	RemoteID    string          `json:"remoteId"`
	Name        string          `json:"name"`
	AccountType string          `json:"accountType"`
	Currency    string          `json:"currency"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AccountDiff is the create/update/delete set the reconciler computes from
// one remote snapshot. It is applied as a single batched write.
type AccountDiff struct {
	Creates []*Account
	Updates []*Account
	// Deletes holds local account ids no longer present remotely.
	Deletes []string
}

// Empty reports whether applying the diff would write nothing.
func (d AccountDiff) Empty() bool {
	return len(d.Creates) == 0 && len(d.Updates) == 0 && len(d.Deletes) == 0
}
