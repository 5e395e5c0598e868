// Package security holds the media URL cipher. Lesson media URLs are signed
// storage links and are kept encrypted at rest; the catalog repository
// decrypts them on read.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	// ErrInvalidKey is returned when the key is not 32 bytes of hex.
	ErrInvalidKey = errors.New("security: key must be 64 hex characters (32 bytes)")

	// ErrDecryptFailed is returned when a ciphertext cannot be opened.
	ErrDecryptFailed = errors.New("security: decryption failed")
)

// MediaCipher encrypts and decrypts media URLs with NaCl secretbox.
// Ciphertexts are base64(nonce || box).
type MediaCipher struct {
	key [32]byte
}

// NewMediaCipher creates a cipher from a hex-encoded 32-byte key.
func NewMediaCipher(hexKey string) (*MediaCipher, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}

	var c MediaCipher
	copy(c.key[:], raw)
	return &c, nil
}

// Encrypt seals a plaintext URL.
func (c *MediaCipher) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("security: failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *MediaCipher) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrDecryptFailed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecryptFailed
	}

	return string(plain), nil
}
