package main

import (
	"errors"
	"fmt"
	"log"
)

// TokenStore persists per-shop access tokens, encrypted at rest. Every read
// round-trips to storage so a re-authorization is visible immediately.
type TokenStore struct {
	db     DB
	cipher *TokenCipher
}

func NewTokenStore(db DB, cipher *TokenCipher) *TokenStore {
	return &TokenStore{db: db, cipher: cipher}
}

// Store encrypts the access token and upserts it keyed by shop.
func (s *TokenStore) Store(shop, accessToken, scope string) error {
	encrypted, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypting token for %s: %w", shop, err)
	}
	if err := s.db.UpsertToken(shop, encrypted, scope); err != nil {
		return fmt.Errorf("storing token for %s: %w", shop, err)
	}
	log.Printf("token stored for shop %s", shop)
	return nil
}

// Get returns the decrypted access token for shop. A missing record is
// ErrTokenNotFound; a record that fails to decrypt is ErrCorruptedCredential,
// which callers must not conflate with absence.
func (s *TokenStore) Get(shop string) (string, error) {
	rec, err := s.db.GetToken(shop)
	if err != nil {
		return "", fmt.Errorf("loading token for %s: %w", shop, err)
	}
	if rec == nil {
		return "", ErrTokenNotFound
	}
	token, err := s.cipher.Decrypt(rec.EncryptedAccessToken)
	if err != nil {
		if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrMalformedCiphertext) {
			return "", fmt.Errorf("%w (shop %s)", ErrCorruptedCredential, shop)
		}
		return "", err
	}
	return token, nil
}

// Delete removes the stored token, reporting whether a record existed.
func (s *TokenStore) Delete(shop string) (bool, error) {
	return s.db.DeleteToken(shop)
}

// ListShops returns shop domains, most recently updated first.
func (s *TokenStore) ListShops() ([]string, error) {
	return s.db.ListShops()
}
