package provider

import (
	"context"
	"time"
)

// API is the raw provider boundary. Implemented by Client; mocked in tests.
type API interface {
	Login(ctx context.Context, userID string, req LoginRequest) (*ProviderAccount, error)
	FetchProviderAccount(ctx context.Context, userID string, id RemoteID) (*ProviderAccount, error)
	SubmitLoginForm(ctx context.Context, userID string, id RemoteID, form *LoginForm) error
	FetchAccounts(ctx context.Context, userID string, providerAccountID RemoteID) ([]RemoteAccount, error)
	FetchTransactions(ctx context.Context, userID string, accountID RemoteID, since *time.Time) ([]RemoteTransaction, error)
	DeleteProviderAccount(ctx context.Context, userID string, id RemoteID) error
}
