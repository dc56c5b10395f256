package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Refresh statuses reported by the aggregator for a provider account.
type RefreshStatus string

const (
	RefreshStatusInProgress     RefreshStatus = "IN_PROGRESS"
	RefreshStatusFailed         RefreshStatus = "FAILED"
	RefreshStatusSuccess        RefreshStatus = "SUCCESS"
	RefreshStatusPartialSuccess RefreshStatus = "PARTIAL_SUCCESS"
)

// Additional statuses that qualify a refresh. Only the ones the linking
// engine branches on are named; everything else is passed through verbatim.
const (
	AdditionalStatusLoginInProgress    = "LOGIN_IN_PROGRESS"
	AdditionalStatusUserInputRequired  = "USER_INPUT_REQUIRED"
	AdditionalStatusLoginFailed        = "LOGIN_FAILED"
	AdditionalStatusRequestTimeOut     = "REQUEST_TIME_OUT"
	AdditionalStatusMFAInfoNotProvided = "MFA_INFO_NOT_PROVIDED"
)

// RemoteID is an identifier assigned by the aggregator. The provider emits
// ids as bare JSON numbers that overflow float64, so they are normalized to
// their decimal string form on decode and only ever compared as strings.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("invalid remote id %s: %w", b, err)
		}
		*id = RemoteID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid remote id %s: %w", b, err)
	}
	*id = RemoteID(n.String())
	return nil
}

func (id RemoteID) String() string { return string(id) }

// Date is a day-granular date as reported by the provider ("2006-01-02").
// The provider rounds transaction timestamps down to the day, which is why
// transaction sync re-fetches from the latest known date inclusive.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date %s: %w", b, err)
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// RefreshInfo is the provider's own view of a linking/refresh attempt.
type RefreshInfo struct {
	Status           RefreshStatus `json:"status"`
	AdditionalStatus string        `json:"additionalStatus,omitempty"`
	StatusMessage    string        `json:"statusMessage,omitempty"`
	LastRefreshed    string        `json:"lastRefreshed,omitempty"`
}

// FormField is a single input of a provider login form.
type FormField struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Label      string `json:"label,omitempty"`
	Type       string `json:"type"`
	Value      string `json:"value,omitempty"`
	IsOptional bool   `json:"isOptional,omitempty"`
}

// FormRow groups the fields rendered on one line of a login form.
type FormRow struct {
	ID     string      `json:"id"`
	Label  string      `json:"label,omitempty"`
	Fields []FormField `json:"fields"`
}

// LoginForm is the credential or MFA form the provider wants filled in.
type LoginForm struct {
	ID       string    `json:"id,omitempty"`
	FormType string    `json:"formType"`
	Rows     []FormRow `json:"row"`
}

// ProviderAccount is the provider's record of one institution login. It is
// the raw snapshot the link state machine polls and persists verbatim as the
// link's source of truth.
type ProviderAccount struct {
	ID            RemoteID    `json:"id"`
	ProviderID    RemoteID    `json:"providerId"`
	ProviderName  string      `json:"providerName,omitempty"`
	RefreshInfo   RefreshInfo `json:"refreshInfo"`
	LoginForm     *LoginForm  `json:"loginForm,omitempty"`
	AggregationID string      `json:"aggregationSource,omitempty"`
	CreatedDate   string      `json:"createdDate,omitempty"`
}

// RemoteAccount is a financial account as the provider reports it.
type RemoteAccount struct {
	ID                RemoteID        `json:"id"`
	ProviderAccountID RemoteID        `json:"providerAccountId"`
	Name              string          `json:"accountName"`
	AccountType       string          `json:"accountType"`
	Currency          string          `json:"currency"`
	Balance           decimal.Decimal `json:"balance"`
	AccountNumber     string          `json:"accountNumber,omitempty"`
}

// RemoteTransaction is a transaction as the provider reports it.
type RemoteTransaction struct {
	ID          RemoteID        `json:"id"`
	AccountID   RemoteID        `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Date        Date            `json:"date"`
	Status      string          `json:"status,omitempty"`
}

// LoginRequest initiates or refreshes a provider account. A zero
// ProviderAccountID means a first-time link against ProviderID; a set one
// asks the provider to re-run aggregation for an existing login.
type LoginRequest struct {
	ProviderID        RemoteID   `json:"providerId,omitempty"`
	ProviderAccountID RemoteID   `json:"providerAccountId,omitempty"`
	LoginForm         *LoginForm `json:"loginForm,omitempty"`
}
