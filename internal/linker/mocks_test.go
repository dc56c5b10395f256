package linker

import (
	"context"
	"sync"
	"time"

	"linka/internal/models"
	"linka/internal/provider"
)

// mockProviderAPI implements provider.API with per-method funcs.
type mockProviderAPI struct {
	loginFunc                 func(ctx context.Context, userID string, req provider.LoginRequest) (*provider.ProviderAccount, error)
	fetchProviderAccountFunc  func(ctx context.Context, userID string, id provider.RemoteID) (*provider.ProviderAccount, error)
	submitLoginFormFunc       func(ctx context.Context, userID string, id provider.RemoteID, form *provider.LoginForm) error
	fetchAccountsFunc         func(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error)
	fetchTransactionsFunc     func(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error)
	deleteProviderAccountFunc func(ctx context.Context, userID string, id provider.RemoteID) error
}

func (m *mockProviderAPI) Login(ctx context.Context, userID string, req provider.LoginRequest) (*provider.ProviderAccount, error) {
	return m.loginFunc(ctx, userID, req)
}

func (m *mockProviderAPI) FetchProviderAccount(ctx context.Context, userID string, id provider.RemoteID) (*provider.ProviderAccount, error) {
	return m.fetchProviderAccountFunc(ctx, userID, id)
}

func (m *mockProviderAPI) SubmitLoginForm(ctx context.Context, userID string, id provider.RemoteID, form *provider.LoginForm) error {
	return m.submitLoginFormFunc(ctx, userID, id, form)
}

func (m *mockProviderAPI) FetchAccounts(ctx context.Context, userID string, providerAccountID provider.RemoteID) ([]provider.RemoteAccount, error) {
	return m.fetchAccountsFunc(ctx, userID, providerAccountID)
}

func (m *mockProviderAPI) FetchTransactions(ctx context.Context, userID string, accountID provider.RemoteID, since *time.Time) ([]provider.RemoteTransaction, error) {
	return m.fetchTransactionsFunc(ctx, userID, accountID, since)
}

func (m *mockProviderAPI) DeleteProviderAccount(ctx context.Context, userID string, id provider.RemoteID) error {
	return m.deleteProviderAccountFunc(ctx, userID, id)
}

// memLinkRepo is an in-memory AccountLinkRepository. It records every
// status written so tests can assert on the persisted transition sequence.
type memLinkRepo struct {
	mu       sync.Mutex
	links    map[string]*models.AccountLink
	statuses []models.LinkStatus
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{links: make(map[string]*models.AccountLink)}
}

func (r *memLinkRepo) GetByID(ctx context.Context, id string) (*models.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[id]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (r *memLinkRepo) FindByUserAndProvider(ctx context.Context, userID, providerID string) (*models.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.UserID == userID && link.ProviderID == providerID {
			cp := *link
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memLinkRepo) Set(ctx context.Context, link *models.AccountLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	r.statuses = append(r.statuses, link.Status)
	return nil
}

func (r *memLinkRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
	return nil
}

func (r *memLinkRepo) ListRefreshable(ctx context.Context) ([]*models.AccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AccountLink
	for _, link := range r.links {
		if link.SourceOfTruth.Kind == models.SourceProvider && link.Status.Terminal() {
			cp := *link
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memLinkRepo) writtenStatuses() []models.LinkStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LinkStatus(nil), r.statuses...)
}

// overwrite simulates another actor changing the stored record.
func (r *memLinkRepo) overwrite(id string, status models.LinkStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if link, ok := r.links[id]; ok {
		link.Status = status
	}
}

type mockAccountRepo struct {
	listByLinkIDFunc func(ctx context.Context, linkID string) ([]*models.Account, error)
	applyDiffFunc    func(ctx context.Context, diff models.AccountDiff) error
}

func (m *mockAccountRepo) ListByLinkID(ctx context.Context, linkID string) ([]*models.Account, error) {
	return m.listByLinkIDFunc(ctx, linkID)
}

func (m *mockAccountRepo) ApplyDiff(ctx context.Context, diff models.AccountDiff) error {
	return m.applyDiffFunc(ctx, diff)
}

type mockTransactionRepo struct {
	latestByAccountIDFunc func(ctx context.Context, accountID string) (*models.Transaction, error)
	existingIDsFunc       func(ctx context.Context, ids []string) (map[string]bool, error)
	insertBatchFunc       func(ctx context.Context, txns []*models.Transaction) error
	deleteByAccountIDFunc func(ctx context.Context, accountID string) error
}

func (m *mockTransactionRepo) LatestByAccountID(ctx context.Context, accountID string) (*models.Transaction, error) {
	return m.latestByAccountIDFunc(ctx, accountID)
}

func (m *mockTransactionRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	return m.existingIDsFunc(ctx, ids)
}

func (m *mockTransactionRepo) InsertBatch(ctx context.Context, txns []*models.Transaction) error {
	return m.insertBatchFunc(ctx, txns)
}

func (m *mockTransactionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	return m.deleteByAccountIDFunc(ctx, accountID)
}

type mockReconciler struct {
	reconcileLinkFunc func(ctx context.Context, link *models.AccountLink) error
}

func (m *mockReconciler) ReconcileLink(ctx context.Context, link *models.AccountLink) error {
	if m.reconcileLinkFunc == nil {
		return nil
	}
	return m.reconcileLinkFunc(ctx, link)
}

type mockMessenger struct {
	mu    sync.Mutex
	sends []string
}

func (m *mockMessenger) Send(ctx context.Context, userID, title, body string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, userID)
	return nil
}

func (m *mockMessenger) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}
