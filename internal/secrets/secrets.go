// Package secrets seals SMTP account passwords so they are never stored in
// plaintext. Sealing uses NaCl secretbox with a key derived from the
// configured master key.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	nonceSize  = 24
	keySize    = 32
	kdfRounds  = 4096
	saltString = "email-sender.sender-credentials.v1"
)

// ErrInvalidCiphertext is returned when sealed data cannot be opened
var ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")

// Box seals and opens byte payloads with a derived symmetric key
type Box struct {
	key [keySize]byte
}

// NewBox derives the sealing key from the master key
func NewBox(masterKey string) (*Box, error) {
	if masterKey == "" {
		return nil, errors.New("secrets: master key is empty")
	}

	b := &Box{}
	derived := pbkdf2.Key([]byte(masterKey), []byte(saltString), kdfRounds, keySize, sha256.New)
	copy(b.key[:], derived)
	return b, nil
}

// Seal encrypts plaintext. The nonce is prepended to the returned slice.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("secrets: failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

// Open decrypts data produced by Seal
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}
