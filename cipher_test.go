package main

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = []byte("abcdefghijklmnopqrstuvwxyz123456")

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{"shpat_test_token_12345", "", "a", "token with spaces and ünïcode"} {
		encrypted, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, encrypted)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestTokenCipherFreshNonce(t *testing.T) {
	c, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	first, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestTokenCipherKeyLength(t *testing.T) {
	for _, key := range [][]byte{nil, []byte("short"), []byte("abcdefghijklmnopqrstuvwxyz12345"), []byte("abcdefghijklmnopqrstuvwxyz1234567")} {
		_, err := NewTokenCipher(key)
		require.ErrorIs(t, err, ErrInvalidKeyLength)
	}
}

func TestTokenCipherWrongKey(t *testing.T) {
	c1, err := NewTokenCipher(testKey)
	require.NoError(t, err)
	c2, err := NewTokenCipher([]byte("ZYXWVUTSRQPONMLKJIHGFEDCBA654321"))
	require.NoError(t, err)

	encrypted, err := c1.Encrypt("shpat_test_token_12345")
	require.NoError(t, err)

	_, err = c2.Decrypt(encrypted)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestTokenCipherTamperedBlob(t *testing.T) {
	c, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	encrypted, err := c.Encrypt("shpat_test_token_12345")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestTokenCipherMalformedInput(t *testing.T) {
	c, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	// not base64
	_, err = c.Decrypt("not%%base64!!")
	require.ErrorIs(t, err, ErrMalformedCiphertext)

	// shorter than the nonce
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}
