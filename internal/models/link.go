package models

import (
	"time"

	"linka/internal/provider"
)

// SourceKind tags the AccountLink source-of-truth union.
type SourceKind string

const (
	// SourceEmpty means no linking attempt has reached the provider yet.
	SourceEmpty SourceKind = "EMPTY"
	// SourceProvider means the link carries the provider's latest snapshot.
	SourceProvider SourceKind = "PROVIDER"
)

// SourceOfTruth is a tagged union: EMPTY, or PROVIDER with the latest raw
// provider-account snapshot (including its nested refresh sub-status and
// any pending login form).
type SourceOfTruth struct {
	Kind            SourceKind                `json:"type"`
	ProviderAccount *provider.ProviderAccount `json:"providerAccount,omitempty"`
}

// EmptySource is the source of a link that has not been attempted.
func EmptySource() SourceOfTruth {
	return SourceOfTruth{Kind: SourceEmpty}
}

// ProviderSource wraps a provider snapshot as a link's source of truth.
func ProviderSource(pa *provider.ProviderAccount) SourceOfTruth {
	return SourceOfTruth{Kind: SourceProvider, ProviderAccount: pa}
}

// AccountLink represents one user's connection attempt to one financial
// institution through the aggregation provider. At most one link per
// (user, provider) pair may be non-terminal at any time; it is mutated only
// by the link engine and the reconciler, and removed only by teardown.
type AccountLink struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userRef"`
	ProviderID    string        `json:"providerRef"`
	ProviderName  string        `json:"providerName"`
	Status        LinkStatus    `json:"status"`
	SourceOfTruth SourceOfTruth `json:"sourceOfTruth"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// ProviderAccountID returns the remote provider-account id backing this
// link, if the provider is the source of truth.
func (l *AccountLink) ProviderAccountID() (provider.RemoteID, bool) {
	if l.SourceOfTruth.Kind != SourceProvider || l.SourceOfTruth.ProviderAccount == nil {
		return "", false
	}
	return l.SourceOfTruth.ProviderAccount.ID, true
}
