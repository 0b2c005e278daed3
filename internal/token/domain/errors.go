package domain

import (
	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	"github.com/allisson/tokenvault/internal/errors"
)

// Token error definitions.
//
// Decryption-side errors identify the exact failed check for logging. Callers at
// the API boundary must collapse them into ErrTokenInvalid.
var (
	// ErrInvalidTokenType indicates a token type outside the supported set.
	ErrInvalidTokenType = errors.Wrap(errors.ErrInvalidInput, "invalid token type")

	// ErrInvalidPolicy indicates a policy with a non-positive max age or rotation interval.
	ErrInvalidPolicy = errors.Wrap(errors.ErrInvalidInput, "invalid token policy")

	// ErrMalformedEnvelope indicates the wire envelope could not be decoded.
	ErrMalformedEnvelope = errors.Wrap(errors.ErrInvalidInput, "malformed envelope")

	// ErrIntegrityFailure indicates the envelope integrity hash does not match.
	ErrIntegrityFailure = errors.Wrap(errors.ErrUnauthorized, "envelope integrity check failed")

	// ErrDecryptionFailure indicates the AEAD authentication tag is invalid.
	ErrDecryptionFailure = errors.Wrap(errors.ErrUnauthorized, "envelope decryption failed")

	// ErrFingerprintMismatch indicates the decrypted payload fingerprint does not match.
	ErrFingerprintMismatch = errors.Wrap(errors.ErrUnauthorized, "token fingerprint mismatch")

	// ErrTypeMismatch indicates the envelope type differs from the expected type.
	ErrTypeMismatch = errors.Wrap(errors.ErrUnauthorized, "token type mismatch")

	// ErrExpired indicates the envelope is older than its policy max age.
	ErrExpired = errors.Wrap(errors.ErrUnauthorized, "token expired")

	// ErrRevoked indicates the token was revoked.
	ErrRevoked = errors.Wrap(errors.ErrUnauthorized, "token revoked")

	// ErrTokenNotFound indicates no usable record exists for the token id and user.
	ErrTokenNotFound = errors.Wrap(errors.ErrNotFound, "token not found")

	// ErrTokenIDRevoked indicates Issue targeted a token id that was revoked. A revoked
	// id is never reused.
	ErrTokenIDRevoked = errors.Wrap(errors.ErrConflict, "token id was revoked")

	// ErrTokenIDExpired indicates Issue targeted a token id whose record already expired.
	// Extending a token requires a new token id.
	ErrTokenIDExpired = errors.Wrap(errors.ErrConflict, "token id has expired")

	// ErrStorage indicates the record store could not complete an operation.
	ErrStorage = errors.Wrap(errors.ErrUnavailable, "token storage error")

	// ErrTokenInvalid is the single opaque outcome returned to token presenters.
	ErrTokenInvalid = errors.Wrap(errors.ErrUnauthorized, "token invalid")
)

// decryptionSideErrors are collapsed into ErrTokenInvalid at the API boundary.
var decryptionSideErrors = []error{
	ErrMalformedEnvelope,
	ErrIntegrityFailure,
	ErrDecryptionFailure,
	ErrFingerprintMismatch,
	ErrTypeMismatch,
	ErrExpired,
	ErrRevoked,
	ErrTokenNotFound,
	cryptoDomain.ErrUnknownKeyVersion,
}

// IsDecryptionSide reports whether err is one of the errors a token presenter must
// only ever see as ErrTokenInvalid.
func IsDecryptionSide(err error) bool {
	for _, target := range decryptionSideErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
