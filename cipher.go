package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// TokenCipher encrypts opaque secret strings with AES-256-GCM. The encoded form
// is base64(nonce || ciphertext || tag), one opaque blob per secret.
type TokenCipher struct {
	aead cipher.AEAD
}

func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	// Seal appends ciphertext+tag to the nonce so the blob is self-contained.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an encoded blob. A wrong key and a corrupted blob both fail
// with ErrAuthentication; nothing partial is ever returned.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(combined) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: too short", ErrMalformedCiphertext)
	}
	nonce, ciphertext := combined[:c.aead.NonceSize()], combined[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}
