package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction belongs to exactly one Account. Transactions are append-only
// and immutable: once written they are never mutated, and sync only ever
// fetches from the date of the latest locally known transaction onward.
// The document id is the provider's transaction id (normalized string), so
// re-inserting an already-known transaction is a no-op overwrite of
// identical data rather than a duplicate.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userRef"`
	AccountID     string          `json:"accountRef"`
	AccountLinkID string          `json:"accountLinkRef"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	Category      string          `json:"category,omitempty"`
	// PostedAt is day-granular; the provider rounds timestamps to the day.
	PostedAt  time.Time `json:"postedAt"`
	CreatedAt time.Time `json:"createdAt"`
}
