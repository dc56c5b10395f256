package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout       = 90 * time.Second
	providerAccountsPath = "/providerAccounts"
	accountsPath         = "/accounts"
	transactionsPath     = "/transactions"
)

// Client handles communication with the aggregation provider's REST API.
// Callers never use it directly; every call goes through the Gateway so the
// permit gate and retry policy apply.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sessions   *SessionStore
}

var _ API = (*Client)(nil)

// NewClient creates a provider API client.
func NewClient(baseURL string, sessions *SessionStore) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		sessions:   sessions,
	}
}

// Login starts or refreshes aggregation for a provider account and returns
// the provider's snapshot of the new attempt.
func (c *Client) Login(ctx context.Context, userID string, req LoginRequest) (*ProviderAccount, error) {
	var out struct {
		ProviderAccount *ProviderAccount `json:"providerAccount"`
	}
	path := providerAccountsPath
	if req.ProviderAccountID != "" {
		path += "/" + url.PathEscape(req.ProviderAccountID.String())
	}
	if err := c.do(ctx, userID, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if out.ProviderAccount == nil {
		return nil, &Error{Kind: KindInternal, Message: "login response carried no provider account"}
	}
	return out.ProviderAccount, nil
}

// FetchProviderAccount returns the current snapshot for a provider account.
// A KindNotFound error means the provider account no longer exists.
func (c *Client) FetchProviderAccount(ctx context.Context, userID string, id RemoteID) (*ProviderAccount, error) {
	var out struct {
		ProviderAccount *ProviderAccount `json:"providerAccount"`
	}
	path := providerAccountsPath + "/" + url.PathEscape(id.String())
	if err := c.do(ctx, userID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.ProviderAccount == nil {
		return nil, &Error{Kind: KindNotFound, Message: "provider account missing from response"}
	}
	return out.ProviderAccount, nil
}

// SubmitLoginForm answers a pending MFA form for a provider account.
func (c *Client) SubmitLoginForm(ctx context.Context, userID string, id RemoteID, form *LoginForm) error {
	path := providerAccountsPath + "/" + url.PathEscape(id.String()) + "/loginForm"
	body := struct {
		LoginForm *LoginForm `json:"loginForm"`
	}{LoginForm: form}
	return c.do(ctx, userID, http.MethodPut, path, body, nil)
}

// FetchAccounts lists the financial accounts under a provider account.
func (c *Client) FetchAccounts(ctx context.Context, userID string, providerAccountID RemoteID) ([]RemoteAccount, error) {
	var out struct {
		Accounts []RemoteAccount `json:"accounts"`
	}
	path := accountsPath + "?providerAccountId=" + url.QueryEscape(providerAccountID.String())
	if err := c.do(ctx, userID, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// FetchTransactions lists transactions for an account. A nil since fetches
// the provider's full history.
func (c *Client) FetchTransactions(ctx context.Context, userID string, accountID RemoteID, since *time.Time) ([]RemoteTransaction, error) {
	var out struct {
		Transactions []RemoteTransaction `json:"transactions"`
	}
	q := url.Values{}
	q.Set("accountId", accountID.String())
	if since != nil {
		q.Set("fromDate", since.Format(dateLayout))
	}
	if err := c.do(ctx, userID, http.MethodGet, transactionsPath+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// DeleteProviderAccount removes the provider account. The provider cascades
// the deletion to its own accounts and transactions.
func (c *Client) DeleteProviderAccount(ctx context.Context, userID string, id RemoteID) error {
	path := providerAccountsPath + "/" + url.PathEscape(id.String())
	return c.do(ctx, userID, http.MethodDelete, path, nil, nil)
}

// do issues one authenticated request, refreshing the session once if the
// provider rejects the cached token.
func (c *Client) do(ctx context.Context, userID, method, path string, body, out any) error {
	err := c.doOnce(ctx, userID, method, path, body, out)
	if err == nil || KindOf(err) != KindAuthFailure {
		return err
	}
	c.sessions.Invalidate(userID)
	return c.doOnce(ctx, userID, method, path, body, out)
}

func (c *Client) doOnce(ctx context.Context, userID, method, path string, body, out any) error {
	token, err := c.sessions.UserToken(userID)
	if err != nil {
		return &Error{Kind: KindInternal, Message: err.Error()}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindInternal, Message: fmt.Sprintf("failed to encode request: %v", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindInternal, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &Error{Kind: classify(resp.StatusCode, apiErr.ErrorCode), Code: apiErr.ErrorCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Kind: KindInternal, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}
