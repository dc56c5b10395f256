package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"linka/internal/models"
	"linka/internal/provider"
)

type mockSource struct {
	fetchAccountsFunc     func(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error)
	fetchTransactionsFunc func(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error)
}

func (m *mockSource) FetchAccounts(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error) {
	return m.fetchAccountsFunc(ctx, userID, providerAccountID)
}

func (m *mockSource) FetchTransactions(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error) {
	if m.fetchTransactionsFunc == nil {
		return nil, nil
	}
	return m.fetchTransactionsFunc(ctx, userID, accountID, since)
}

// memAccountRepo records applied diffs.
type memAccountRepo struct {
	mu       sync.Mutex
	accounts []*models.Account
	applied  []models.AccountDiff
}

func (r *memAccountRepo) ListByLinkID(ctx context.Context, linkID string) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Account(nil), r.accounts...), nil
}

func (r *memAccountRepo) ApplyDiff(ctx context.Context, diff models.AccountDiff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, diff)
	return nil
}

// memTransactionRepo records inserts and deletes.
type memTransactionRepo struct {
	mu       sync.Mutex
	latest   map[string]*models.Transaction
	existing map[string]bool
	inserted []*models.Transaction
	deleted  []string
}

func (r *memTransactionRepo) LatestByAccountID(ctx context.Context, accountID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest[accountID], nil
}

func (r *memTransactionRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range ids {
		if r.existing[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (r *memTransactionRepo) InsertBatch(ctx context.Context, txns []*models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, txns...)
	return nil
}

func (r *memTransactionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, accountID)
	return nil
}

func testLink() *models.AccountLink {
	return &models.AccountLink{
		ID:            "link-1",
		UserID:        "user-1",
		SourceOfTruth: models.ProviderSource(&provider.ProviderAccount{ID: "9001"}),
	}
}

func localAccount(id, remoteID, name string, balance string) *models.Account {
	b, _ := decimal.NewFromString(balance)
	return &models.Account{
		ID:            id,
		UserID:        "user-1",
		AccountLinkID: "link-1",
		RemoteID:      remoteID,
		Name:          name,
		AccountType:   "CHECKING",
		Currency:      "BRL",
		Balance:       b,
	}
}

func remoteAccount(id provider.RemoteID, name string, balance string) provider.RemoteAccount {
	b, _ := decimal.NewFromString(balance)
	return provider.RemoteAccount{
		ID:          id,
		Name:        name,
		AccountType: "CHECKING",
		Currency:    "BRL",
		Balance:     b,
	}
}

func TestReconcileLinkDiff(t *testing.T) {
	// Local has A and B; remote has B (changed balance) and C. Expect
	// delete A, update B, create C, and A's transactions purged.
	accounts := &memAccountRepo{accounts: []*models.Account{
		localAccount("acct-a", "100", "Old Account", "10"),
		localAccount("acct-b", "200", "Kept Account", "20"),
	}}
	txns := &memTransactionRepo{}
	source := &mockSource{
		fetchAccountsFunc: func(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error) {
			return []provider.RemoteAccount{
				remoteAccount("200", "Kept Account", "25"),
				remoteAccount("300", "New Account", "30"),
			}, nil
		},
	}

	engine := NewEngine(source, accounts, txns, zerolog.Nop())
	if err := engine.ReconcileLink(context.Background(), testLink()); err != nil {
		t.Fatalf("ReconcileLink failed: %v", err)
	}

	if len(accounts.applied) != 1 {
		t.Fatalf("applied %d diffs, want 1", len(accounts.applied))
	}
	diff := accounts.applied[0]
	if len(diff.Deletes) != 1 || diff.Deletes[0] != "acct-a" {
		t.Errorf("deletes = %v, want [acct-a]", diff.Deletes)
	}
	if len(diff.Updates) != 1 || diff.Updates[0].ID != "acct-b" {
		t.Fatalf("updates = %v, want acct-b", diff.Updates)
	}
	if !diff.Updates[0].Balance.Equal(decimal.NewFromInt(25)) {
		t.Errorf("updated balance = %s, want 25", diff.Updates[0].Balance)
	}
	if len(diff.Creates) != 1 || diff.Creates[0].RemoteID != "300" {
		t.Fatalf("creates = %v, want remote id 300", diff.Creates)
	}
	if diff.Creates[0].ID == "" || diff.Creates[0].ID == "300" {
		t.Errorf("created account must get its own local id, got %q", diff.Creates[0].ID)
	}

	if len(txns.deleted) != 1 || txns.deleted[0] != "acct-a" {
		t.Errorf("purged transactions for %v, want [acct-a]", txns.deleted)
	}
}

func TestReconcileLinkIdempotent(t *testing.T) {
	accounts := &memAccountRepo{accounts: []*models.Account{
		localAccount("acct-b", "200", "Kept Account", "20"),
	}}
	txns := &memTransactionRepo{existing: map[string]bool{"t1": true}}
	source := &mockSource{
		fetchAccountsFunc: func(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error) {
			return []provider.RemoteAccount{remoteAccount("200", "Kept Account", "20")}, nil
		},
		fetchTransactionsFunc: func(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error) {
			return []provider.RemoteTransaction{
				{ID: "t1", Amount: decimal.NewFromInt(5), Date: provider.Date{Time: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}},
			}, nil
		},
	}

	engine := NewEngine(source, accounts, txns, zerolog.Nop())
	if err := engine.ReconcileLink(context.Background(), testLink()); err != nil {
		t.Fatalf("ReconcileLink failed: %v", err)
	}

	if len(accounts.applied) != 0 {
		t.Errorf("unchanged accounts produced %d diff applications, want 0", len(accounts.applied))
	}
	if len(txns.inserted) != 0 {
		t.Errorf("known transactions were re-inserted: %v", txns.inserted)
	}
	if len(txns.deleted) != 0 {
		t.Errorf("transactions deleted without an account deletion: %v", txns.deleted)
	}
}

func TestSyncTransactionsSinceLatest(t *testing.T) {
	latestDate := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	accounts := &memAccountRepo{accounts: []*models.Account{
		localAccount("acct-b", "200", "Kept Account", "20"),
	}}
	txns := &memTransactionRepo{
		latest:   map[string]*models.Transaction{"acct-b": {ID: "t1", PostedAt: latestDate}},
		existing: map[string]bool{"t1": true},
	}

	var gotSince *time.Time
	source := &mockSource{
		fetchAccountsFunc: func(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error) {
			return []provider.RemoteAccount{remoteAccount("200", "Kept Account", "20")}, nil
		},
		fetchTransactionsFunc: func(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error) {
			gotSince = since
			// The provider reports day-granular dates, so the latest known
			// day comes back again alongside the new one.
			return []provider.RemoteTransaction{
				{ID: "t1", Amount: decimal.NewFromInt(5), Date: provider.Date{Time: latestDate}},
				{ID: "t2", Amount: decimal.NewFromInt(7), Currency: "BRL", Date: provider.Date{Time: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)}},
			}, nil
		},
	}

	engine := NewEngine(source, accounts, txns, zerolog.Nop())
	if err := engine.ReconcileLink(context.Background(), testLink()); err != nil {
		t.Fatalf("ReconcileLink failed: %v", err)
	}

	if gotSince == nil || !gotSince.Equal(latestDate) {
		t.Fatalf("fetch window started at %v, want %v", gotSince, latestDate)
	}
	if len(txns.inserted) != 1 || txns.inserted[0].ID != "t2" {
		t.Fatalf("inserted %v, want only t2", txns.inserted)
	}
	got := txns.inserted[0]
	if got.AccountID != "acct-b" || got.AccountLinkID != "link-1" || got.UserID != "user-1" {
		t.Errorf("inserted transaction misattributed: %+v", got)
	}
	if !got.PostedAt.Equal(time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("posted at %v, want 2024-01-12", got.PostedAt)
	}
}

func TestReconcileLinkFirstSyncFetchesEverything(t *testing.T) {
	accounts := &memAccountRepo{}
	txns := &memTransactionRepo{}

	var gotSince *time.Time
	sinceSet := false
	source := &mockSource{
		fetchAccountsFunc: func(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error) {
			return []provider.RemoteAccount{remoteAccount("300", "New Account", "30")}, nil
		},
		fetchTransactionsFunc: func(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error) {
			gotSince, sinceSet = since, true
			return []provider.RemoteTransaction{
				{ID: "t1", Amount: decimal.NewFromInt(5), Date: provider.Date{Time: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}},
			}, nil
		},
	}

	engine := NewEngine(source, accounts, txns, zerolog.Nop())
	if err := engine.ReconcileLink(context.Background(), testLink()); err != nil {
		t.Fatalf("ReconcileLink failed: %v", err)
	}

	if !sinceSet {
		t.Fatal("transactions were never fetched for the created account")
	}
	if gotSince != nil {
		t.Fatalf("first sync must fetch the full history, got since=%v", gotSince)
	}
	if len(txns.inserted) != 1 {
		t.Fatalf("inserted %d transactions, want 1", len(txns.inserted))
	}
}
