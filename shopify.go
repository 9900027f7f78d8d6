package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const shopifyAPIVersion = "2025-04"

// ShopifyClient talks to the admin API of a single platform. Transient
// failures (network errors, 5xx, 429) are retried with exponential backoff;
// 401 and 403 are terminal and require re-running the OAuth handshake.
type ShopifyClient struct {
	httpClient *http.Client
	scheme     string
	apiVersion string
	maxRetries int
	retryBase  time.Duration
}

func NewShopifyClient() *ShopifyClient {
	return &ShopifyClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		scheme:     "https",
		apiVersion: shopifyAPIVersion,
		maxRetries: 3,
		retryBase:  100 * time.Millisecond,
	}
}

// ExchangeCode swaps an authorization code for an access token.
func (c *ShopifyClient) ExchangeCode(ctx context.Context, shop, code, apiKey, apiSecret string) (*AccessTokenResponse, error) {
	tokenURL := fmt.Sprintf("%s://%s/admin/oauth/access_token", c.scheme, shop)
	body, err := json.Marshal(map[string]string{
		"client_id":     apiKey,
		"client_secret": apiSecret,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// The authorization code is single-use, so the exchange is never retried.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", upstreamError(resp.StatusCode), resp.StatusCode, detail)
	}

	var token AccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	return &token, nil
}

// GetJSON performs an authenticated GET against the admin API and decodes the
// response into out.
func (c *ShopifyClient) GetJSON(ctx context.Context, shop, token, endpoint string, query url.Values, out interface{}) error {
	u := fmt.Sprintf("%s://%s/admin/api/%s/%s", c.scheme, shop, c.apiVersion, endpoint)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "shopauth/1.0")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("shopify API error %d for %s: %s", resp.StatusCode, endpoint, detail)
		return fmt.Errorf("%w: status %d", upstreamError(resp.StatusCode), resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// do sends a bodyless request, retrying transient failures with exponential
// backoff.
func (c *ShopifyClient) do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << (attempt - 1)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		lastErr = fmt.Errorf("%w: status %d", upstreamError(resp.StatusCode), resp.StatusCode)
		resp.Body.Close()
	}
	return nil, lastErr
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func upstreamError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUpstreamUnauthorized
	case http.StatusForbidden:
		return ErrUpstreamForbidden
	case http.StatusNotFound:
		return ErrUpstreamNotFound
	case http.StatusTooManyRequests:
		return ErrUpstreamRateLimited
	default:
		return errors.New("shopify: upstream request failed")
	}
}
