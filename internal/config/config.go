package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Host        string
	Environment string

	// Shopify app settings
	Shop        string
	APIKey      string
	APISecret   string
	RedirectURI string
	OAuthScopes string

	// Token encryption key, must be exactly 32 bytes
	EncryptionKey string

	DBAdapter  string
	SQLiteFile string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RateLimit RateLimitConfig
}

// RateLimitConfig holds the request-admission thresholds. The limiter built from
// these is currently installed behind a pass-through middleware; the values are
// configuration surface only.
type RateLimitConfig struct {
	OAuthRequestsPerMinute   int
	APIRequestsPerMinute     int
	GeneralRequestsPerMinute int
	BurstSize                int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	// If DSN is provided directly, use it
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	// Build DSN from individual components
	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:        getenv("PORT", "8080"),
		Host:        getenv("HOST", "0.0.0.0"),
		Environment: strings.ToLower(getenv("ENVIRONMENT", "development")),

		Shop:        os.Getenv("SHOP"),
		APIKey:      os.Getenv("API_KEY"),
		APISecret:   os.Getenv("API_SECRET"),
		RedirectURI: os.Getenv("REDIRECT_URI"),
		OAuthScopes: getenv("OAUTH_SCOPES", "read_orders,read_checkouts"),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),

		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/shopauth.db"),
		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", getenv("DATABASE_URL", "")),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "shopauth")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "shopauth")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "shopauth")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),

		RateLimit: RateLimitConfig{
			OAuthRequestsPerMinute:   getenvInt("OAUTH_RATE_LIMIT", 10),
			APIRequestsPerMinute:     getenvInt("API_RATE_LIMIT", 60),
			GeneralRequestsPerMinute: getenvInt("GENERAL_RATE_LIMIT", 30),
			BurstSize:                getenvInt("RATE_LIMIT_BURST", 5),
		},
	}

	if c.Shop == "" {
		return nil, errors.New("SHOP must be set")
	}
	if c.APIKey == "" || c.APISecret == "" {
		return nil, errors.New("API_KEY and API_SECRET must be set")
	}
	if c.RedirectURI == "" {
		return nil, errors.New("REDIRECT_URI must be set")
	}

	// The cipher requires a 32-byte key. Outside development this is a hard error;
	// locally a missing key falls back to a fixed value so the server can come up.
	if len(c.EncryptionKey) != 32 {
		if c.Environment == "production" || c.Environment == "prod" {
			return nil, errors.New("ENCRYPTION_KEY must be exactly 32 bytes")
		}
		if c.EncryptionKey == "" {
			c.EncryptionKey = "dev-only-insecure-32-byte-key!!!"
		} else {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
		}
	}

	// Validate PostgreSQL configuration if using postgres
	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" {
		// ensure sqlite file path is not empty
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	}

	// normalize port
	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
