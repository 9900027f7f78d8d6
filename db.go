package main

import (
	"database/sql"
	"sync"
	"time"
)

// DB interface for database operations
type DB interface {
	Init() error
	// Token operations
	UpsertToken(shop, encryptedToken, scope string) error
	GetToken(shop string) (*TokenRecord, error)
	DeleteToken(shop string) (bool, error)
	ListShops() ([]string, error)
	// OAuth state operations
	InsertState(token string, expiresAt time.Time) error
	// ConsumeState deletes the state row if it exists and has not expired,
	// reporting whether a row was deleted. The delete-if-valid must be atomic:
	// concurrent callers racing on the same token get exactly one true.
	ConsumeState(token string) (bool, error)
	DeleteExpiredStates() (int64, error)
}

// Memory DB
type MemDB struct {
	mu     sync.Mutex
	tokens map[string]*TokenRecord
	states map[string]time.Time
}

func NewMemoryDB() *MemDB {
	return &MemDB{tokens: map[string]*TokenRecord{}, states: map[string]time.Time{}}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) UpsertToken(shop, encryptedToken, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if rec, ok := m.tokens[shop]; ok {
		rec.EncryptedAccessToken = encryptedToken
		rec.Scope = scope
		rec.UpdatedAt = now
		return nil
	}
	m.tokens[shop] = &TokenRecord{
		Shop:                 shop,
		EncryptedAccessToken: encryptedToken,
		Scope:                scope,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return nil
}

func (m *MemDB) GetToken(shop string) (*TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.tokens[shop]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) DeleteToken(shop string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[shop]; ok {
		delete(m.tokens, shop)
		return true, nil
	}
	return false, nil
}

func (m *MemDB) ListShops() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]*TokenRecord, 0, len(m.tokens))
	for _, rec := range m.tokens {
		recs = append(recs, rec)
	}
	// most recently updated first
	for i := 0; i < len(recs); i++ {
		for j := i + 1; j < len(recs); j++ {
			if recs[j].UpdatedAt.After(recs[i].UpdatedAt) {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
	}
	shops := make([]string, len(recs))
	for i, rec := range recs {
		shops[i] = rec.Shop
	}
	return shops, nil
}

func (m *MemDB) InsertState(token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[token] = expiresAt
	return nil
}

func (m *MemDB) ConsumeState(token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.states[token]
	if !ok || !expiresAt.After(time.Now()) {
		return false, nil
	}
	delete(m.states, token)
	return true, nil
}

func (m *MemDB) DeleteExpiredStates() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for token, expiresAt := range m.states {
		if !expiresAt.After(now) {
			delete(m.states, token)
			n++
		}
	}
	return n, nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS shopify_tokens (shop_domain TEXT PRIMARY KEY, encrypted_access_token TEXT NOT NULL, scope TEXT NOT NULL DEFAULT '', created_at TEXT NOT NULL, updated_at TEXT NOT NULL, expires_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS oauth_states (state_token TEXT PRIMARY KEY, created_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) UpsertToken(shop, encryptedToken, scope string) error {
	_, err := s.db.Exec(`INSERT INTO shopify_tokens(shop_domain,encrypted_access_token,scope,created_at,updated_at)
		VALUES(?,?,?,datetime('now'),datetime('now'))
		ON CONFLICT(shop_domain) DO UPDATE SET
			encrypted_access_token = excluded.encrypted_access_token,
			scope = excluded.scope,
			updated_at = datetime('now')`, shop, encryptedToken, scope)
	return err
}

func (s *SQLiteDB) GetToken(shop string) (*TokenRecord, error) {
	row := s.db.QueryRow(`SELECT shop_domain,encrypted_access_token,scope,created_at,updated_at FROM shopify_tokens WHERE shop_domain = ?`, shop)
	var rec TokenRecord
	var createdAt, updatedAt string
	if err := row.Scan(&rec.Shop, &rec.EncryptedAccessToken, &rec.Scope, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	rec.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
	return &rec, nil
}

func (s *SQLiteDB) DeleteToken(shop string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM shopify_tokens WHERE shop_domain = ?`, shop)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteDB) ListShops() ([]string, error) {
	rows, err := s.db.Query(`SELECT shop_domain FROM shopify_tokens ORDER BY updated_at DESC, shop_domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shops []string
	for rows.Next() {
		var shop string
		if err := rows.Scan(&shop); err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}
	return shops, rows.Err()
}

func (s *SQLiteDB) InsertState(token string, expiresAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO oauth_states(state_token,created_at,expires_at) VALUES(?,?,?)`,
		token, time.Now().Unix(), expiresAt.Unix())
	return err
}

func (s *SQLiteDB) ConsumeState(token string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM oauth_states WHERE state_token = ? AND expires_at > ?`, token, time.Now().Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteDB) DeleteExpiredStates() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM oauth_states WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
