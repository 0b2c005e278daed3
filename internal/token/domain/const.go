// Package domain defines the token encryption domain: token types and their
// policies, the encrypted envelope and the persisted token record.
package domain

import (
	"fmt"
)

// TokenType identifies the kind of bearer token an envelope protects.
type TokenType string

const (
	TokenTypeJWT     TokenType = "jwt"
	TokenTypeOAuth   TokenType = "oauth"
	TokenTypeSession TokenType = "session"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenTypes lists every supported token type.
var TokenTypes = []TokenType{TokenTypeJWT, TokenTypeOAuth, TokenTypeSession, TokenTypeRefresh}

// Validate checks if the token type is one of the supported types.
func (t TokenType) Validate() error {
	switch t {
	case TokenTypeJWT, TokenTypeOAuth, TokenTypeSession, TokenTypeRefresh:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTokenType, string(t))
	}
}

// String returns the string representation of the token type.
func (t TokenType) String() string {
	return string(t)
}

// KDFContext returns the domain separation context used for subkey derivation.
func (t TokenType) KDFContext() string {
	return string(t) + ":"
}

// ParseTokenType converts a string into a TokenType.
func ParseTokenType(s string) (TokenType, error) {
	t := TokenType(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

const (
	// SaltSize is the per-envelope KDF salt length.
	SaltSize = 32

	// IVSize is the AEAD nonce length.
	IVSize = 16

	// AuthTagSize is the AEAD authentication tag length.
	AuthTagSize = 16

	// IntegrityHashSize is the HMAC-SHA256 output length.
	IntegrityHashSize = 32

	// FingerprintLength is the number of hex characters in a fingerprint.
	FingerprintLength = 16

	// BindingTagLength is the number of hex characters in a binding tag.
	BindingTagLength = 32

	// MaxTokenSize bounds the plaintext token accepted for encryption (16 KB).
	MaxTokenSize = 16384

	// MaxMetadataEntries bounds the number of metadata keys per envelope.
	MaxMetadataEntries = 32
)
