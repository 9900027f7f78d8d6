package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
)

const oauthStateTTL = 10 * time.Minute

// HandleAuth starts the OAuth handshake: mint a CSRF state token and redirect
// to the platform's consent screen.
func (a *App) HandleAuth(w http.ResponseWriter, r *http.Request) {
	state, err := a.stateStore.Issue(oauthStateTTL)
	if err != nil {
		log.Printf("issuing oauth state: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to initiate OAuth flow")
		return
	}

	authURL := fmt.Sprintf("https://%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		a.config.Shop,
		a.config.APIKey,
		url.QueryEscape(a.config.OAuthScopes),
		url.QueryEscape(a.config.RedirectURI),
		url.QueryEscape(state),
	)

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback finishes the handshake: consume the state token, exchange the
// code, persist the token. Any terminal failure sends the caller back to /auth.
func (a *App) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		log.Printf("oauth error from provider: %s", provErr)
		writeError(w, http.StatusBadRequest, "OAUTH_DENIED", "Authorization was not granted; restart at /auth")
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing authorization code")
		return
	}

	shop := q.Get("shop")
	if shop == "" {
		shop = a.config.Shop
	}

	// The state check must pass before anything else happens. Missing, expired,
	// unknown and replayed states all get the same answer.
	state := q.Get("state")
	if state == "" {
		log.Printf("warning: oauth callback without state token")
		writeError(w, http.StatusForbidden, "SECURITY_ERROR", "Security check failed; restart at /auth")
		return
	}
	ok, err := a.stateStore.ValidateAndConsume(state)
	if err != nil {
		log.Printf("validating oauth state: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to validate security token")
		return
	}
	if !ok {
		log.Printf("warning: invalid or expired oauth state %.8s", state)
		writeError(w, http.StatusForbidden, "SECURITY_ERROR", "Security check failed; restart at /auth")
		return
	}

	token, err := a.shopify.ExchangeCode(r.Context(), shop, code, a.config.APIKey, a.config.APISecret)
	if err != nil {
		log.Printf("token exchange failed for %s: %v", shop, err)
		writeError(w, http.StatusBadGateway, "EXCHANGE_FAILED", "Failed to exchange authorization code; restart at /auth")
		return
	}

	if err := a.tokenStore.Store(shop, token.AccessToken, token.Scope); err != nil {
		log.Printf("storing token for %s: %v", shop, err)
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", "OAuth succeeded but the access token could not be stored; restart at /auth")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shop":  shop,
		"scope": token.Scope,
	})
}

// HandleListShops enumerates shops with stored credentials.
func (a *App) HandleListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := a.tokenStore.ListShops()
	if err != nil {
		log.Printf("listing shops: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list shops")
		return
	}
	if shops == nil {
		shops = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shops": shops})
}

// HandleGetShop fetches shop metadata from the admin API using the stored
// token, relaying upstream auth failures as a pointer back to /auth.
func (a *App) HandleGetShop(w http.ResponseWriter, r *http.Request) {
	shop := mux.Vars(r)["shop"]

	token, err := a.tokenStore.Get(shop)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			writeError(w, http.StatusUnauthorized, "NO_TOKEN", "No access token found; complete the OAuth flow at /auth")
			return
		}
		if errors.Is(err, ErrCorruptedCredential) {
			log.Printf("corrupted credential for %s: %v", shop, err)
			writeError(w, http.StatusInternalServerError, "CORRUPTED_CREDENTIAL", "Stored credential is unreadable; re-authorize at /auth")
			return
		}
		log.Printf("loading token for %s: %v", shop, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load access token")
		return
	}

	var out struct {
		Shop map[string]interface{} `json:"shop"`
	}
	if err := a.shopify.GetJSON(r.Context(), shop, token, "shop.json", nil, &out); err != nil {
		status := upstreamStatus(err)
		if status == http.StatusUnauthorized {
			writeError(w, status, "UPSTREAM_UNAUTHORIZED", "Access token rejected; re-authorize at /auth")
			return
		}
		writeError(w, status, "UPSTREAM_ERROR", "Admin API request failed")
		return
	}
	writeJSON(w, http.StatusOK, out.Shop)
}

// HandleDeleteShop removes the stored credential for a shop.
func (a *App) HandleDeleteShop(w http.ResponseWriter, r *http.Request) {
	shop := mux.Vars(r)["shop"]
	removed, err := a.tokenStore.Delete(shop)
	if err != nil {
		log.Printf("deleting token for %s: %v", shop, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete credential")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No credential stored for shop")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}
