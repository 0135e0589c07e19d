package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcReynaud/MissionPay/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.stripe.com/v1"

// Client is a minimal Stripe API client covering the calls the payment core
// issues: checkout sessions, express accounts, account links and transfers.
type Client struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// APIError carries the decoded error body of a non-2xx Stripe response.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: status=%d type=%s code=%s message=%s", e.StatusCode, e.Type, e.Code, e.Message)
}

func NewClientFromEnv() *Client {
	return &Client{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCheckoutSession creates a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	mode := strings.TrimSpace(params.Mode)
	if mode != "payment" && mode != "subscription" {
		return nil, fmt.Errorf("unsupported checkout mode: %q", params.Mode)
	}
	if strings.TrimSpace(params.SuccessURL) == "" || strings.TrimSpace(params.CancelURL) == "" {
		return nil, errors.New("success_url and cancel_url are required")
	}

	form := url.Values{}
	form.Set("mode", mode)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.ClientReferenceID != "" {
		form.Set("client_reference_id", params.ClientReferenceID)
	}
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	switch mode {
	case "payment":
		if params.AmountTotal <= 0 {
			return nil, errors.New("amount_total must be positive")
		}
		form.Set("line_items[0][quantity]", "1")
		form.Set("line_items[0][price_data][currency]", params.Currency)
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountTotal, 10))
		form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	case "subscription":
		if strings.TrimSpace(params.PriceID) == "" {
			return nil, errors.New("price_id is required for subscription checkout")
		}
		form.Set("line_items[0][quantity]", "1")
		form.Set("line_items[0][price]", params.PriceID)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out CheckoutSession
	if err := c.post(ctx, "/checkout/sessions", form, "", &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("checkout session response missing url")
	}
	return &out, nil
}

// CreateAccount creates an express payout account.
func (c *Client) CreateAccount(ctx context.Context, params AccountParams) (*Account, error) {
	form := url.Values{}
	form.Set("type", "express")
	if params.Email != "" {
		form.Set("email", params.Email)
	}
	if params.Country != "" {
		form.Set("country", params.Country)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out Account
	if err := c.post(ctx, "/accounts", form, "", &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("account response missing id")
	}
	return &out, nil
}

// GetAccount fetches a connected account's current state.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("account id is required")
	}
	var out Account
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAccountLink requests a fresh onboarding link for a connected account.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("account id is required")
	}
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", refreshURL)
	form.Set("return_url", returnURL)
	form.Set("type", "account_onboarding")

	var out AccountLink
	if err := c.post(ctx, "/account_links", form, "", &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("account link response missing url")
	}
	return &out, nil
}

// CreateTransfer moves funds from the platform balance to a connected
// account. The idempotency key makes redelivered instructions safe.
func (c *Client) CreateTransfer(ctx context.Context, params TransferParams) (*Transfer, error) {
	if params.Amount <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}
	if strings.TrimSpace(params.Destination) == "" {
		return nil, errors.New("transfer destination is required")
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	form.Set("destination", params.Destination)
	if params.TransferGroup != "" {
		form.Set("transfer_group", params.TransferGroup)
	}
	if params.Description != "" {
		form.Set("description", params.Description)
	}

	var out Transfer
	if err := c.post(ctx, "/transfers", form, params.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransfersByGroup returns transfers issued under a transfer group,
// optionally filtered to one destination. Used to resolve unknown-outcome
// transfer calls before a second attempt.
func (c *Client) ListTransfersByGroup(ctx context.Context, group, destination string) ([]Transfer, error) {
	if strings.TrimSpace(group) == "" {
		return nil, errors.New("transfer group is required")
	}
	q := url.Values{}
	q.Set("transfer_group", group)
	q.Set("limit", "100")

	var out struct {
		Data []Transfer `json:"data"`
	}
	if err := c.get(ctx, "/transfers", q, &out); err != nil {
		return nil, err
	}
	if destination == "" {
		return out.Data, nil
	}
	filtered := make([]Transfer, 0, len(out.Data))
	for _, tr := range out.Data {
		if tr.Destination == destination {
			filtered = append(filtered, tr)
		}
	}
	return filtered, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var raw struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &raw); err == nil {
			apiErr.Type = raw.Error.Type
			apiErr.Code = raw.Error.Code
			apiErr.Message = raw.Error.Message
		}
		return apiErr
	}

	return json.Unmarshal(body, out)
}
