package main

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func (p *PostgresDB) UpsertToken(shop, encryptedToken, scope string) error {
	_, err := p.db.Exec(`INSERT INTO shopify_tokens(shop_domain,encrypted_access_token,scope)
		VALUES($1,$2,$3)
		ON CONFLICT (shop_domain)
		DO UPDATE SET
			encrypted_access_token = EXCLUDED.encrypted_access_token,
			scope = EXCLUDED.scope,
			updated_at = NOW()`, shop, encryptedToken, scope)
	return err
}

func (p *PostgresDB) GetToken(shop string) (*TokenRecord, error) {
	row := p.db.QueryRow(`SELECT shop_domain,encrypted_access_token,scope,created_at,updated_at,expires_at FROM shopify_tokens WHERE shop_domain = $1`, shop)
	var rec TokenRecord
	var expiresAt sql.NullTime
	if err := row.Scan(&rec.Shop, &rec.EncryptedAccessToken, &rec.Scope, &rec.CreatedAt, &rec.UpdatedAt, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	return &rec, nil
}

func (p *PostgresDB) DeleteToken(shop string) (bool, error) {
	res, err := p.db.Exec(`DELETE FROM shopify_tokens WHERE shop_domain = $1`, shop)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresDB) ListShops() ([]string, error) {
	rows, err := p.db.Query(`SELECT shop_domain FROM shopify_tokens ORDER BY updated_at DESC`)
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

func (p *PostgresDB) InsertState(token string, expiresAt time.Time) error {
	_, err := p.db.Exec(`INSERT INTO oauth_states(state_token,expires_at) VALUES($1,$2)`, token, expiresAt)
	return err
}

func (p *PostgresDB) ConsumeState(token string) (bool, error) {
	// single conditional delete; the row either goes to exactly one caller or nobody
	res, err := p.db.Exec(`DELETE FROM oauth_states WHERE state_token = $1 AND expires_at > NOW()`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresDB) DeleteExpiredStates() (int64, error) {
	res, err := p.db.Exec(`DELETE FROM oauth_states WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
