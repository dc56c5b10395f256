package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/api/iterator"

	"linka/internal/infrastructure/crypto"
	"linka/internal/models"
	"linka/internal/provider"
)

// AccountLinkRepository implements models.AccountLinkRepository. The raw
// provider snapshot is stored as a nested document; login-form values are
// encrypted before they touch the wire and decrypted on read.
type AccountLinkRepository struct {
	store     *Store
	encryptor *crypto.Encryptor
}

var _ models.AccountLinkRepository = (*AccountLinkRepository)(nil)

func NewAccountLinkRepository(store *Store, encryptor *crypto.Encryptor) *AccountLinkRepository {
	return &AccountLinkRepository{store: store, encryptor: encryptor}
}

func (r *AccountLinkRepository) GetByID(ctx context.Context, id string) (*models.AccountLink, error) {
	doc, err := r.store.client.Collection(linksCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get link %s: %w", id, err)
	}
	return r.fromDoc(doc.Data())
}

func (r *AccountLinkRepository) FindByUserAndProvider(ctx context.Context, userID, providerID string) (*models.AccountLink, error) {
	iter := r.store.client.Collection(linksCollection).
		Where("userRef", "==", userID).
		Where("providerRef", "==", providerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link for user %s provider %s: %w", userID, providerID, err)
	}
	return r.fromDoc(doc.Data())
}

func (r *AccountLinkRepository) Set(ctx context.Context, link *models.AccountLink) error {
	data, err := r.toDoc(link)
	if err != nil {
		return err
	}
	if _, err := r.store.client.Collection(linksCollection).Doc(link.ID).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to set link %s: %w", link.ID, err)
	}
	return nil
}

func (r *AccountLinkRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.store.client.Collection(linksCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete link %s: %w", id, err)
	}
	return nil
}

func (r *AccountLinkRepository) ListRefreshable(ctx context.Context) ([]*models.AccountLink, error) {
	iter := r.store.client.Collection(linksCollection).
		Where("sourceOfTruth.type", "==", string(models.SourceProvider)).
		Documents(ctx)
	defer iter.Stop()

	var links []*models.AccountLink
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list refreshable links: %w", err)
		}
		link, err := r.fromDoc(doc.Data())
		if err != nil {
			return nil, err
		}
		// Terminal-only filter happens here; the status set is too wide
		// for a single indexed equality clause.
		if link.Status.Terminal() {
			links = append(links, link)
		}
	}
	return links, nil
}

func (r *AccountLinkRepository) toDoc(link *models.AccountLink) (map[string]any, error) {
	source := map[string]any{"type": string(link.SourceOfTruth.Kind)}
	if pa := link.SourceOfTruth.ProviderAccount; pa != nil {
		sealed, err := r.sealForm(pa)
		if err != nil {
			return nil, err
		}
		snapshot, err := snapshotToMap(sealed)
		if err != nil {
			return nil, err
		}
		source["providerAccount"] = snapshot
	}
	return map[string]any{
		"id":            link.ID,
		"userRef":       link.UserID,
		"providerRef":   link.ProviderID,
		"providerName":  link.ProviderName,
		"status":        string(link.Status),
		"sourceOfTruth": source,
		"createdAt":     link.CreatedAt,
		"updatedAt":     link.UpdatedAt,
	}, nil
}

func (r *AccountLinkRepository) fromDoc(data map[string]any) (*models.AccountLink, error) {
	link := &models.AccountLink{
		ID:            asString(data["id"]),
		UserID:        asString(data["userRef"]),
		ProviderID:    asString(data["providerRef"]),
		ProviderName:  asString(data["providerName"]),
		Status:        models.LinkStatus(asString(data["status"])),
		SourceOfTruth: models.EmptySource(),
		CreatedAt:     asTime(data["createdAt"]),
		UpdatedAt:     asTime(data["updatedAt"]),
	}

	source, _ := data["sourceOfTruth"].(map[string]any)
	if source == nil {
		return link, nil
	}
	link.SourceOfTruth.Kind = models.SourceKind(asString(source["type"]))
	if raw, ok := source["providerAccount"].(map[string]any); ok {
		pa, err := snapshotFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot for link %s: %w", link.ID, err)
		}
		if err := r.openForm(pa); err != nil {
			return nil, fmt.Errorf("failed to decrypt login form for link %s: %w", link.ID, err)
		}
		link.SourceOfTruth.ProviderAccount = pa
	}
	return link, nil
}

// sealForm returns a copy of the snapshot with login-form values
// encrypted. The original is left untouched; the machine keeps working
// with cleartext in memory.
func (r *AccountLinkRepository) sealForm(pa *provider.ProviderAccount) (*provider.ProviderAccount, error) {
	if r.encryptor == nil || pa.LoginForm == nil {
		return pa, nil
	}
	out := *pa
	form := *pa.LoginForm
	form.Rows = make([]provider.FormRow, len(pa.LoginForm.Rows))
	for i, row := range pa.LoginForm.Rows {
		form.Rows[i] = row
		form.Rows[i].Fields = make([]provider.FormField, len(row.Fields))
		for j, field := range row.Fields {
			sealed, err := r.encryptor.Encrypt(field.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt form field %s: %w", field.ID, err)
			}
			field.Value = sealed
			form.Rows[i].Fields[j] = field
		}
	}
	out.LoginForm = &form
	return &out, nil
}

func (r *AccountLinkRepository) openForm(pa *provider.ProviderAccount) error {
	if r.encryptor == nil || pa.LoginForm == nil {
		return nil
	}
	for i := range pa.LoginForm.Rows {
		for j := range pa.LoginForm.Rows[i].Fields {
			value, err := r.encryptor.Decrypt(pa.LoginForm.Rows[i].Fields[j].Value)
			if err != nil {
				return err
			}
			pa.LoginForm.Rows[i].Fields[j].Value = value
		}
	}
	return nil
}

// snapshotToMap converts the snapshot to a plain map through its JSON
// form, which keeps field names aligned with the provider's wire format
// and normalizes RemoteID values to strings.
func snapshotToMap(pa *provider.ProviderAccount) (map[string]any, error) {
	raw, err := json.Marshal(pa)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to convert snapshot: %w", err)
	}
	return out, nil
}

func snapshotFromMap(data map[string]any) (*provider.ProviderAccount, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var pa provider.ProviderAccount
	if err := json.Unmarshal(raw, &pa); err != nil {
		return nil, err
	}
	return &pa, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}
