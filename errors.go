package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Cipher errors
var (
	ErrInvalidKeyLength    = errors.New("encryption key must be exactly 32 bytes")
	ErrEncrypt             = errors.New("encryption failed")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrAuthentication covers both wrong-key and tampered data; the two are
	// deliberately indistinguishable.
	ErrAuthentication = errors.New("ciphertext authentication failed")
)

// Token store errors
var (
	ErrTokenNotFound = errors.New("no access token stored for shop")
	// ErrCorruptedCredential means a record exists but cannot be decrypted.
	// Callers must not treat this as "not found".
	ErrCorruptedCredential = errors.New("stored credential cannot be decrypted")
)

// Upstream admin API errors
var (
	ErrUpstreamUnauthorized = errors.New("shopify: invalid or expired access token")
	ErrUpstreamForbidden    = errors.New("shopify: insufficient permissions for requested scope")
	ErrUpstreamNotFound     = errors.New("shopify: resource not found")
	ErrUpstreamRateLimited  = errors.New("shopify: rate limit exceeded")
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// upstreamStatus maps admin API errors to the status we relay to our own caller.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, ErrUpstreamUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstreamForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
