package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/shopauth/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

const stateSweepInterval = 5 * time.Minute

type App struct {
	DB          DB
	config      *cfg.Config
	tokenStore  *TokenStore
	stateStore  *StateStore
	shopify     *ShopifyClient
	rateLimiter *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func newRouter(app *App) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(SecurityHeaders)
	r.Use(app.Logging)
	r.Use(app.CORS)
	r.Use(app.RateLimit)

	// Health check endpoints
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := app.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	// OAuth handshake
	r.HandleFunc("/auth", app.HandleAuth).Methods("GET")
	r.HandleFunc("/callback", app.HandleCallback).Methods("GET")

	// Webhook callbacks
	wh := r.PathPrefix("/webhooks").Subrouter()
	wh.HandleFunc("", app.HandleListWebhooks).Methods("GET")
	wh.HandleFunc("/orders/created", app.HandleOrderCreated).Methods("POST")
	wh.HandleFunc("/orders/updated", app.HandleOrderUpdated).Methods("POST")
	wh.HandleFunc("/orders/cancelled", app.HandleOrderCancelled).Methods("POST")
	wh.HandleFunc("/products/created", app.HandleProductCreated).Methods("POST")
	wh.HandleFunc("/customers/created", app.HandleCustomerCreated).Methods("POST")
	wh.HandleFunc("/checkouts/created", app.HandleCheckoutCreated).Methods("POST")
	wh.HandleFunc("/checkouts/updated", app.HandleCheckoutUpdated).Methods("POST")

	// Credential administration
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/shops", app.HandleListShops).Methods("GET")
	v1.HandleFunc("/shops/{shop}", app.HandleGetShop).Methods("GET")
	v1.HandleFunc("/shops/{shop}", app.HandleDeleteShop).Methods("DELETE")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}

		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		} else {
			log.Println("Migrations applied successfully")
		}

		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	cipher, err := NewTokenCipher([]byte(c.EncryptionKey))
	if err != nil {
		log.Fatalf("cipher init: %v", err)
	}

	app := &App{
		DB:          db,
		config:      c,
		tokenStore:  NewTokenStore(db, cipher),
		stateStore:  NewStateStore(db),
		shopify:     NewShopifyClient(),
		rateLimiter: NewRateLimiter(c.RateLimit.GeneralRequestsPerMinute, c.RateLimit.BurstSize),
	}

	r := newRouter(app)

	// Background cleanup of expired CSRF states
	sweepStop := make(chan struct{})
	go app.stateStore.RunSweeper(stateSweepInterval, sweepStop)

	srv := &http.Server{Handler: r, Addr: c.Host + ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 15 * time.Second}

	go func() {
		fmt.Println("Starting server on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(sweepStop)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
