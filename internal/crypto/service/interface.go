// Package service provides the cryptographic primitives behind token envelopes:
// AES-256-GCM with a 16-byte nonce, PBKDF2 subkey derivation and KMS access for
// wrapped master keys.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	// The ciphertext carries the authentication tag in its last TagSize bytes.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext (tag appended) using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager creates AEAD cipher instances from raw 32-byte keys.
type AEADManager interface {
	CreateCipher(key []byte) (AEAD, error)
}

// KeyDerivation stretches a master key into a per-call subkey.
type KeyDerivation interface {
	// Derive returns a deterministic 32-byte subkey for masterKey, salt and context.
	// The same inputs always produce the same subkey.
	Derive(masterKey, salt []byte, context string) ([]byte, error)
}

// KMSService opens KMS keepers and wraps new master keys for configuration output.
type KMSService interface {
	// OpenKeeper opens a secrets.Keeper for the configured KMS provider.
	// Returns an error if the KMS provider URI is invalid or connection fails.
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)

	// WrapMasterKey encrypts key with the keeper at keyURI and returns base64 ciphertext
	// suitable for a MASTER_KEYS entry.
	WrapMasterKey(ctx context.Context, keyURI string, key []byte) (string, error)
}
