package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
)

const (
	// NonceSize is the IV length used for envelopes. GCM accepts non-standard
	// nonce sizes; 16 bytes keeps the wire format stable.
	NonceSize = 16

	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// AESGCMCipher implements AEAD using AES-256-GCM with a 16-byte random nonce.
//
// The instance is stateless after construction and safe for concurrent use. A
// fresh nonce is drawn from crypto/rand on every Encrypt call, so nonces do not
// repeat under the same key in practice.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates a new AES-256-GCM cipher. The key must be exactly 32 bytes.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The returned ciphertext has
// the 16-byte tag appended.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = a.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt verifies the tag and opens ciphertext. No plaintext is returned when
// authentication fails.
func (a *AESGCMCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != a.aead.NonceSize() {
		return nil, fmt.Errorf("failed to decrypt: nonce must be %d bytes", a.aead.NonceSize())
	}
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
