package main

import (
	"encoding/json"
	"time"
)

// TokenRecord is a stored OAuth access token for one shop. The access token is
// kept encrypted; only the token store decrypts it.
type TokenRecord struct {
	Shop                 string
	EncryptedAccessToken string
	Scope                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ExpiresAt            *time.Time
}

// OAuthStateRecord is a single-use CSRF token guarding the OAuth callback.
type OAuthStateRecord struct {
	StateToken string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// AccessTokenResponse is Shopify's code-for-token exchange response.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// Webhook payloads. Only the fields the handlers log are typed; nested
// substructures from the admin API stay raw.

type OrderWebhook struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	Email           string            `json:"email"`
	TotalPrice      string            `json:"total_price"`
	Currency        string            `json:"currency"`
	FinancialStatus string            `json:"financial_status"`
	CancelReason    string            `json:"cancel_reason"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
	Customer        json.RawMessage   `json:"customer"`
	LineItems       []json.RawMessage `json:"line_items"`
	BillingAddress  json.RawMessage   `json:"billing_address"`
	ShippingAddress json.RawMessage   `json:"shipping_address"`
}

type ProductWebhook struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Vendor    string            `json:"vendor"`
	Status    string            `json:"status"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Variants  []json.RawMessage `json:"variants"`
	Images    []json.RawMessage `json:"images"`
}

type CustomerWebhook struct {
	ID        int64           `json:"id"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Addresses json.RawMessage `json:"addresses"`
}

type CheckoutWebhook struct {
	ID                   int64             `json:"id"`
	Token                string            `json:"token"`
	Email                string            `json:"email"`
	TotalPrice           string            `json:"total_price"`
	AbandonedCheckoutURL string            `json:"abandoned_checkout_url"`
	CreatedAt            string            `json:"created_at"`
	UpdatedAt            string            `json:"updated_at"`
	LineItems            []json.RawMessage `json:"line_items"`
	Customer             json.RawMessage   `json:"customer"`
}

// WebhookResponse is the acknowledgement body returned to Shopify.
type WebhookResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func webhookSuccess(message string) WebhookResponse {
	return WebhookResponse{Status: "success", Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func webhookError(message string) WebhookResponse {
	return WebhookResponse{Status: "error", Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}
