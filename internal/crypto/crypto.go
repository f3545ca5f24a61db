// Package crypto encrypts the failed-recording queue at rest with
// AES-256-GCM. The key lives in the secret store and is generated on
// first use. A stored key that no longer decodes is a hard error, never
// replaced: data sealed under it would become unreadable.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/kalambet/vono/internal/credentials"
)

const keySize = 32

// Cipher seals and opens byte blobs with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key is %d bytes, want %d", len(key), keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plain and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plain, nil
}

// EnsureKey loads the encryption key from the secret store, generating
// and persisting one on first use.
func EnsureKey(kc credentials.Keychain) ([]byte, error) {
	stored, err := kc.Get(credentials.Service, credentials.AccountEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("reading encryption key: %w", err)
	}
	if stored == "" {
		key := make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating encryption key: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(key)
		if err := kc.Set(credentials.Service, credentials.AccountEncryptionKey, encoded); err != nil {
			return nil, fmt.Errorf("storing encryption key: %w", err)
		}
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("stored encryption key is not valid base64: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("stored encryption key is %d bytes, want %d", len(key), keySize)
	}
	return key, nil
}
