package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"linka/internal/models"
)

// lookupChunkSize bounds how many document refs one GetAll fetches when
// checking which transaction ids already exist.
const lookupChunkSize = 300

// TransactionRepository implements models.TransactionRepository.
// Documents are keyed by the provider's transaction id, so inserts are
// naturally idempotent.
type TransactionRepository struct {
	store *Store
}

var _ models.TransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

func (r *TransactionRepository) LatestByAccountID(ctx context.Context, accountID string) (*models.Transaction, error) {
	iter := r.store.client.Collection(transactionsCollection).
		Where("accountRef", "==", accountID).
		OrderBy("postedAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest transaction for account %s: %w", accountID, err)
	}
	return transactionFromDoc(doc.Data())
}

func (r *TransactionRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	for start := 0; start < len(ids); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		refs := make([]*firestore.DocumentRef, 0, end-start)
		for _, id := range ids[start:end] {
			refs = append(refs, r.store.client.Collection(transactionsCollection).Doc(id))
		}
		docs, err := r.store.client.GetAll(ctx, refs)
		if err != nil {
			return nil, fmt.Errorf("failed to look up existing transactions: %w", err)
		}
		for _, doc := range docs {
			if doc.Exists() {
				existing[doc.Ref.ID] = true
			}
		}
	}
	return existing, nil
}

func (r *TransactionRepository) InsertBatch(ctx context.Context, txns []*models.Transaction) error {
	writes := make([]write, 0, len(txns))
	for _, txn := range txns {
		writes = append(writes, write{
			ref:  r.store.client.Collection(transactionsCollection).Doc(txn.ID),
			data: transactionToDoc(txn),
		})
	}
	return r.store.commitChunked(ctx, "transactions.insertBatch", writes)
}

func (r *TransactionRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	iter := r.store.client.Collection(transactionsCollection).
		Where("accountRef", "==", accountID).
		Select().
		Documents(ctx)
	defer iter.Stop()

	var writes []write
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
		}
		writes = append(writes, write{ref: doc.Ref, delete: true})
	}
	return r.store.commitChunked(ctx, "transactions.deleteByAccount", writes)
}

func transactionToDoc(txn *models.Transaction) map[string]any {
	return map[string]any{
		"id":             txn.ID,
		"userRef":        txn.UserID,
		"accountRef":     txn.AccountID,
		"accountLinkRef": txn.AccountLinkID,
		"amount":         txn.Amount.String(),
		"currency":       txn.Currency,
		"description":    txn.Description,
		"category":       txn.Category,
		"postedAt":       txn.PostedAt,
		"createdAt":      txn.CreatedAt,
	}
}

func transactionFromDoc(data map[string]any) (*models.Transaction, error) {
	amount, err := decimal.NewFromString(asString(data["amount"]))
	if err != nil {
		return nil, fmt.Errorf("invalid amount on transaction %s: %w", asString(data["id"]), err)
	}
	return &models.Transaction{
		ID:            asString(data["id"]),
		UserID:        asString(data["userRef"]),
		AccountID:     asString(data["accountRef"]),
		AccountLinkID: asString(data["accountLinkRef"]),
		Amount:        amount,
		Currency:      asString(data["currency"]),
		Description:   asString(data["description"]),
		Category:      asString(data["category"]),
		PostedAt:      asTime(data["postedAt"]),
		CreatedAt:     asTime(data["createdAt"]),
	}, nil
}
