package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	cfg "github.com/example/shopauth/internal/config"
	"github.com/stretchr/testify/require"
)

const webhookTestSecret = "test_webhook_secret"

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte("test webhook payload")
	signature := signBody(webhookTestSecret, body)

	require.True(t, verifyWebhook(body, signature, webhookTestSecret))
	require.True(t, verifyWebhook(body, "sha256="+signature, webhookTestSecret))

	require.False(t, verifyWebhook(body, "invalid_signature", webhookTestSecret))
	require.False(t, verifyWebhook(body, signature, "wrong_secret"))
	require.False(t, verifyWebhook([]byte("other payload"), signature, webhookTestSecret))
}

func TestVerifyWebhookSignatureMutation(t *testing.T) {
	body := []byte("test webhook payload")
	signature := signBody(webhookTestSecret, body)

	for i := range signature {
		mutated := []byte(signature)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		require.False(t, verifyWebhook(body, string(mutated), webhookTestSecret))
	}
}

func newWebhookTestApp() *App {
	db := NewMemoryDB()
	return &App{
		DB:         db,
		config:     &cfg.Config{Shop: "test-shop.myshopify.com", APIKey: "test_api_key", APISecret: webhookTestSecret},
		tokenStore: nil,
		stateStore: NewStateStore(db),
	}
}

func postWebhook(app *App, path string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Shopify-Hmac-Sha256", signature)
	}
	req.Header.Set("X-Shopify-Shop-Domain", "test-shop.myshopify.com")
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)
	return w
}

func TestOrderWebhookAccepted(t *testing.T) {
	app := newWebhookTestApp()
	body := []byte(`{"id":12345,"name":"#1001","total_price":"29.99","currency":"USD","customer":null,"line_items":[]}`)

	w := postWebhook(app, "/webhooks/orders/created", body, signBody(webhookTestSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"success"`)
}

func TestWebhookMissingSignature(t *testing.T) {
	app := newWebhookTestApp()
	body := []byte(`{"id":12345,"name":"#1001"}`)

	w := postWebhook(app, "/webhooks/orders/created", body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookBadSignature(t *testing.T) {
	app := newWebhookTestApp()
	body := []byte(`{"id":12345,"name":"#1001"}`)

	w := postWebhook(app, "/webhooks/orders/created", body, signBody("some_other_secret", body))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	// the response does not say which check failed
	require.NotContains(t, w.Body.String(), "signature")
}

func TestWebhookMalformedPayload(t *testing.T) {
	app := newWebhookTestApp()
	body := []byte(`{"id": not-json`)

	w := postWebhook(app, "/webhooks/checkouts/created", body, signBody(webhookTestSecret, body))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutWebhookAccepted(t *testing.T) {
	app := newWebhookTestApp()
	body := []byte(`{"id":67890,"token":"test_token_123","total_price":"19.99","email":"customer@example.com","line_items":[{"title":"Widget"}],"customer":{"id":1}}`)

	w := postWebhook(app, "/webhooks/checkouts/created", body, signBody(webhookTestSecret, body))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListWebhooks(t *testing.T) {
	app := newWebhookTestApp()
	req := httptest.NewRequest(http.MethodGet, "/webhooks", nil)
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "orders/create")
	require.Contains(t, w.Body.String(), "checkouts/update")
}
