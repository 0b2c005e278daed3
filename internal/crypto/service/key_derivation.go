package service

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	apperrors "github.com/allisson/tokenvault/internal/errors"
)

// MinKDFIterations is the lowest PBKDF2 iteration count accepted.
const MinKDFIterations = 100_000

// ErrWeakKDF indicates a KDF iteration count below MinKDFIterations.
var ErrWeakKDF = apperrors.Wrap(apperrors.ErrInvalidInput, "kdf iterations below minimum")

// pbkdf2Derivation derives subkeys with PBKDF2-HMAC-SHA256 over salt || context.
// The context is the token type prefix, so two token types never share a subkey
// even under the same master key and salt.
type pbkdf2Derivation struct {
	iterations int
}

// NewKeyDerivation creates a PBKDF2-SHA256 KeyDerivation.
// Returns ErrWeakKDF when iterations is below MinKDFIterations.
func NewKeyDerivation(iterations int) (KeyDerivation, error) {
	if iterations < MinKDFIterations {
		return nil, fmt.Errorf("%w: got %d, need at least %d", ErrWeakKDF, iterations, MinKDFIterations)
	}
	return &pbkdf2Derivation{iterations: iterations}, nil
}

// Derive returns a 32-byte subkey. Callers should zero it after use.
func (p *pbkdf2Derivation) Derive(masterKey, salt []byte, context string) ([]byte, error) {
	if len(masterKey) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	if len(salt) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "salt is required")
	}

	input := make([]byte, 0, len(salt)+len(context))
	input = append(input, salt...)
	input = append(input, context...)

	return pbkdf2.Key(masterKey, input, p.iterations, cryptoDomain.KeySize, sha256.New), nil
}
