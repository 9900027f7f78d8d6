package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
)

// verifyWebhook checks a Shopify webhook signature against the raw request
// body. The signature header may carry a "sha256=" prefix; digests are
// hex-encoded and compared in constant time.
func verifyWebhook(body []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// readAndVerifyWebhook reads the raw body exactly once and verifies it before
// any parsing. A missing header and a bad signature both produce the same
// rejection. The body bytes are returned for parsing only on success.
func (a *App) readAndVerifyWebhook(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to read request body"))
		return nil, false
	}

	signature := r.Header.Get("X-Shopify-Hmac-Sha256")
	if signature == "" || !verifyWebhook(body, signature, a.config.APISecret) {
		log.Printf("warning: webhook verification failed for %s from shop %q", r.URL.Path, r.Header.Get("X-Shopify-Shop-Domain"))
		writeJSON(w, http.StatusUnauthorized, webhookError("Webhook verification failed"))
		return nil, false
	}

	if shopDomain := r.Header.Get("X-Shopify-Shop-Domain"); shopDomain != "" {
		log.Printf("webhook %s from shop %s", r.URL.Path, shopDomain)
	}
	return body, true
}

func (a *App) HandleOrderCreated(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var order OrderWebhook
	if err := json.Unmarshal(body, &order); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse order data"))
		return
	}
	log.Printf("order created: %s total %s %s", order.Name, order.TotalPrice, order.Currency)
	writeJSON(w, http.StatusOK, webhookSuccess("Order "+order.Name+" processed"))
}

func (a *App) HandleOrderUpdated(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var order OrderWebhook
	if err := json.Unmarshal(body, &order); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse order data"))
		return
	}
	log.Printf("order updated: %s status %s", order.Name, order.FinancialStatus)
	writeJSON(w, http.StatusOK, webhookSuccess("Order "+order.Name+" update processed"))
}

func (a *App) HandleOrderCancelled(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var order OrderWebhook
	if err := json.Unmarshal(body, &order); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse order data"))
		return
	}
	log.Printf("order cancelled: %s reason %q", order.Name, order.CancelReason)
	writeJSON(w, http.StatusOK, webhookSuccess("Order "+order.Name+" cancellation processed"))
}

func (a *App) HandleProductCreated(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var product ProductWebhook
	if err := json.Unmarshal(body, &product); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse product data"))
		return
	}
	log.Printf("product created: %q by %s", product.Title, product.Vendor)
	writeJSON(w, http.StatusOK, webhookSuccess("Product processed"))
}

func (a *App) HandleCustomerCreated(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var customer CustomerWebhook
	if err := json.Unmarshal(body, &customer); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse customer data"))
		return
	}
	log.Printf("customer created: %s %s", customer.FirstName, customer.LastName)
	writeJSON(w, http.StatusOK, webhookSuccess("Customer processed"))
}

func (a *App) HandleCheckoutCreated(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var checkout CheckoutWebhook
	if err := json.Unmarshal(body, &checkout); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse checkout data"))
		return
	}
	log.Printf("checkout created: %s total %s", checkout.Token, checkout.TotalPrice)
	writeJSON(w, http.StatusOK, webhookSuccess("Checkout processed"))
}

func (a *App) HandleCheckoutUpdated(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readAndVerifyWebhook(w, r)
	if !ok {
		return
	}
	var checkout CheckoutWebhook
	if err := json.Unmarshal(body, &checkout); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookError("Failed to parse checkout data"))
		return
	}
	log.Printf("checkout updated: %s total %s", checkout.Token, checkout.TotalPrice)
	writeJSON(w, http.StatusOK, webhookSuccess("Checkout update processed"))
}

// HandleListWebhooks reports the webhook topics this service accepts.
func (a *App) HandleListWebhooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"supported_webhooks": []map[string]string{
			{"topic": "orders/create", "endpoint": "/webhooks/orders/created"},
			{"topic": "orders/updated", "endpoint": "/webhooks/orders/updated"},
			{"topic": "orders/cancelled", "endpoint": "/webhooks/orders/cancelled"},
			{"topic": "products/create", "endpoint": "/webhooks/products/created"},
			{"topic": "customers/create", "endpoint": "/webhooks/customers/created"},
			{"topic": "checkouts/create", "endpoint": "/webhooks/checkouts/created"},
			{"topic": "checkouts/update", "endpoint": "/webhooks/checkouts/updated"},
		},
		"webhook_verification": "HMAC SHA256 with API secret",
		"format":               "JSON",
	})
}
