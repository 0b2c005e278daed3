package domain

import (
	"github.com/allisson/tokenvault/internal/errors"
)

// Key management error definitions.
//
// Configuration errors (malformed MASTER_KEYS, bad key sizes, missing active
// version) are fatal at startup. ErrUnknownKeyVersion is a decryption-side error
// and is normalized to an opaque outcome at the token API boundary.
var (
	// ErrInvalidKeySize indicates a master key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrUnknownKeyVersion indicates an envelope names a key version the store does not hold.
	ErrUnknownKeyVersion = errors.Wrap(errors.ErrInvalidInput, "unknown key version")

	// ErrMasterKeysNotSet indicates MASTER_KEYS is empty in an environment that
	// forbids ephemeral keys.
	ErrMasterKeysNotSet = errors.Wrap(errors.ErrInvalidInput, "MASTER_KEYS is not set")

	// ErrInvalidMasterKeysFormat indicates an entry in MASTER_KEYS is not "version:base64key".
	ErrInvalidMasterKeysFormat = errors.Wrap(errors.ErrInvalidInput, "invalid MASTER_KEYS format")

	// ErrInvalidMasterKeyBase64 indicates a master key value failed base64 decoding.
	ErrInvalidMasterKeyBase64 = errors.Wrap(errors.ErrInvalidInput, "invalid master key base64")

	// ErrDuplicateKeyVersion indicates the same version appears twice in MASTER_KEYS.
	ErrDuplicateKeyVersion = errors.Wrap(errors.ErrConflict, "duplicate master key version")

	// ErrActiveMasterKeyNotFound indicates ACTIVE_MASTER_KEY_VERSION names a missing key.
	ErrActiveMasterKeyNotFound = errors.Wrap(errors.ErrNotFound, "active master key not found")

	// ErrKMSDecryptionFailed indicates a KMS-wrapped master key could not be unwrapped.
	ErrKMSDecryptionFailed = errors.Wrap(errors.ErrUnavailable, "failed to decrypt master key with KMS")

	// ErrKeyStoreClosed indicates the key store was closed and its material zeroed.
	ErrKeyStoreClosed = errors.Wrap(errors.ErrUnavailable, "key store is closed")
)
