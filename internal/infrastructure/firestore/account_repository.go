package firestore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"linka/internal/models"
)

// AccountRepository implements models.AccountRepository. Balances are
// stored as decimal strings; float coercion would corrupt them.
type AccountRepository struct {
	store *Store
}

var _ models.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

func (r *AccountRepository) ListByLinkID(ctx context.Context, linkID string) ([]*models.Account, error) {
	iter := r.store.client.Collection(accountsCollection).
		Where("accountLinkRef", "==", linkID).
		Documents(ctx)
	defer iter.Stop()

	var accounts []*models.Account
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts for link %s: %w", linkID, err)
		}
		acct, err := accountFromDoc(doc.Data())
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func (r *AccountRepository) ApplyDiff(ctx context.Context, diff models.AccountDiff) error {
	writes := make([]write, 0, len(diff.Creates)+len(diff.Updates)+len(diff.Deletes))
	for _, acct := range diff.Creates {
		writes = append(writes, write{
			ref:  r.store.client.Collection(accountsCollection).Doc(acct.ID),
			data: accountToDoc(acct),
		})
	}
	for _, acct := range diff.Updates {
		writes = append(writes, write{
			ref:  r.store.client.Collection(accountsCollection).Doc(acct.ID),
			data: accountToDoc(acct),
		})
	}
	for _, id := range diff.Deletes {
		writes = append(writes, write{
			ref:    r.store.client.Collection(accountsCollection).Doc(id),
			delete: true,
		})
	}
	return r.store.commitChunked(ctx, "accounts.applyDiff", writes)
}

func accountToDoc(acct *models.Account) map[string]any {
	return map[string]any{
		"id":             acct.ID,
		"userRef":        acct.UserID,
		"accountLinkRef": acct.AccountLinkID,
		"remoteId":       acct.RemoteID,
		"name":           acct.Name,
		"accountType":    acct.AccountType,
		"currency":       acct.Currency,
		"balance":        acct.Balance.String(),
		"createdAt":      acct.CreatedAt,
		"updatedAt":      acct.UpdatedAt,
	}
}

func accountFromDoc(data map[string]any) (*models.Account, error) {
	balance, err := decimal.NewFromString(asString(data["balance"]))
	if err != nil {
		return nil, fmt.Errorf("invalid balance on account %s: %w", asString(data["id"]), err)
	}
	return &models.Account{
		ID:            asString(data["id"]),
		UserID:        asString(data["userRef"]),
		AccountLinkID: asString(data["accountLinkRef"]),
		RemoteID:      asString(data["remoteId"]),
		Name:          asString(data["name"]),
		AccountType:   asString(data["accountType"]),
		Currency:      asString(data["currency"]),
		Balance:       balance,
		CreatedAt:     asTime(data["createdAt"]),
		UpdatedAt:     asTime(data["updatedAt"]),
	}, nil
}
