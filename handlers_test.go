package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	cfg "github.com/example/shopauth/internal/config"
	"github.com/stretchr/testify/require"
)

// newTestApp wires an App against the in-memory DB and a fake admin API.
func newTestApp(t *testing.T, upstream *httptest.Server) *App {
	t.Helper()
	cipher, err := NewTokenCipher(testKey)
	require.NoError(t, err)
	db := NewMemoryDB()

	shopify := NewShopifyClient()
	shopify.scheme = "http"
	shopify.retryBase = time.Millisecond
	if upstream != nil {
		shopify.httpClient = upstream.Client()
	}

	return &App{
		DB:         db,
		config:     &cfg.Config{Shop: "test-shop.myshopify.com", APIKey: "test_api_key_12345", APISecret: "test_api_secret_67890", RedirectURI: "https://test-app.com/callback", OAuthScopes: "read_orders,read_checkouts"},
		tokenStore: NewTokenStore(db, cipher),
		stateStore: NewStateStore(db),
		shopify:    shopify,
	}
}

func TestAuthRedirect(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "test-shop.myshopify.com", loc.Host)
	require.Equal(t, "/admin/oauth/authorize", loc.Path)

	q := loc.Query()
	require.Equal(t, "test_api_key_12345", q.Get("client_id"))
	require.Equal(t, "read_orders,read_checkouts", q.Get("scope"))
	require.Equal(t, "https://test-app.com/callback", q.Get("redirect_uri"))
	require.NotEmpty(t, q.Get("state"))

	// the redirect state is consumable exactly once
	ok, err := app.stateStore.ValidateAndConsume(q.Get("state"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCallbackRejectsMissingState(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&shop=test-shop.myshopify.com", nil)
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged-state", nil)
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	// nothing was stored
	_, err := app.tokenStore.Get("test-shop.myshopify.com")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestCallbackRejectsMissingCode(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/callback?state=whatever", nil)
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackRelaysProviderError(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil)
	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOAuthFlowEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var exchangeReqs []map[string]string
	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/oauth/access_token" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		exchangeReqs = append(exchangeReqs, body)
		mu.Unlock()
		writeJSON(w, http.StatusOK, AccessTokenResponse{AccessToken: "shpat_exchanged_token", Scope: "read_orders,read_checkouts"})
	}))
	defer exchange.Close()

	app := newTestApp(t, exchange)
	router := newRouter(app)
	shop := exchange.Listener.Addr().String() // the fake upstream plays the shop host

	// start the flow
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth", nil))
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	// callback with the issued state
	cb := "/callback?code=test_authorization_code&shop=" + url.QueryEscape(shop) + "&state=" + url.QueryEscape(state)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cb, nil))
	require.Equal(t, http.StatusOK, w.Code)

	// exactly one exchange, carrying the app credentials and the code
	mu.Lock()
	require.Len(t, exchangeReqs, 1)
	require.Equal(t, "test_api_key_12345", exchangeReqs[0]["client_id"])
	require.Equal(t, "test_api_secret_67890", exchangeReqs[0]["client_secret"])
	require.Equal(t, "test_authorization_code", exchangeReqs[0]["code"])
	mu.Unlock()

	// the exchanged token is stored
	token, err := app.tokenStore.Get(shop)
	require.NoError(t, err)
	require.Equal(t, "shpat_exchanged_token", token)

	// the state cannot be replayed
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cb, nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	// delete the credential and confirm it is gone
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/shops/"+shop, nil))
	require.Equal(t, http.StatusOK, w.Code)

	_, err = app.tokenStore.Get(shop)
	require.ErrorIs(t, err, ErrTokenNotFound)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/shops/"+shop, nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListShopsEndpoint(t *testing.T) {
	app := newTestApp(t, nil)
	router := newRouter(app)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/shops", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"shops":[]`)

	require.NoError(t, app.tokenStore.Store("a.myshopify.com", "shpat_a", "read_orders"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/shops", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "a.myshopify.com")
}

func TestGetShopWithoutToken(t *testing.T) {
	app := newTestApp(t, nil)

	w := httptest.NewRecorder()
	newRouter(app).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/shops/unknown.myshopify.com", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "/auth")
}
