// Package usecase orchestrates token encryption, key rotation and the token record
// lifecycle (issue, open, revoke, cleanup).
package usecase

import (
	"context"
	"time"

	"github.com/allisson/tokenvault/internal/token/domain"
)

// EnvelopeCodec seals and opens token envelopes. *service.Codec implements it.
type EnvelopeCodec interface {
	Encrypt(token string, tokenType domain.TokenType, metadata map[string]string) (*domain.Envelope, error)
	Decrypt(envelope *domain.Envelope, expectedType domain.TokenType) (*domain.Payload, error)
}

// KeyRotator exposes the rotation side of the key store. *cryptoDomain.KeyStore implements it.
type KeyRotator interface {
	CurrentVersion() int
	Rotate(newSecret []byte) (oldVersion, newVersion int, err error)
}

// AuditPublisher records audit events durably.
type AuditPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// TokenRepository persists token records and the revocation list.
type TokenRepository interface {
	// Upsert inserts the record or, when the token id exists, replaces its envelope,
	// type, purpose and device info. Expiry and revocation fields are never updated.
	Upsert(ctx context.Context, record *domain.TokenRecord) error

	// Get returns the record for tokenID regardless of owner, expiry or revocation.
	// Returns ErrTokenNotFound if no record exists.
	Get(ctx context.Context, tokenID string) (*domain.TokenRecord, error)

	// MarkRevoked flags a record as revoked. Returns ErrTokenNotFound when no
	// unrevoked record matches.
	MarkRevoked(ctx context.Context, tokenID, reason string, revokedAt time.Time) error

	// CreateRevocationEntry appends to the revocation list.
	CreateRevocationEntry(ctx context.Context, entry *domain.RevocationEntry) error

	// ListActiveTokenIDs returns the ids of a user's unrevoked, unexpired records.
	ListActiveTokenIDs(ctx context.Context, userID string, now time.Time) ([]string, error)

	// IsRevoked reports whether the record is flagged or the id is on the revocation list.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// TouchLastAccessed sets last_accessed_at.
	TouchLastAccessed(ctx context.Context, tokenID string, at time.Time) error

	// DeleteStale deletes records that expired before expiredBefore or were revoked
	// before revokedBefore. Returns the number of deleted records.
	DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error)

	// CountStale counts the records DeleteStale would delete.
	CountStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error)
}

// RevocationCache is a fast lookaside set of revoked token ids. The repository stays
// the source of truth.
type RevocationCache interface {
	Add(ctx context.Context, tokenIDs ...string) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

// LifecycleUseCase orchestrates envelope encryption and key rotation under the
// per-type policies.
type LifecycleUseCase interface {
	// EncryptToken seals token under the current master key version.
	EncryptToken(token string, tokenType domain.TokenType, metadata map[string]string) (*domain.Envelope, error)

	// DecryptToken opens envelope using the key of its own version.
	// expectedType may be empty to accept any type.
	DecryptToken(envelope *domain.Envelope, expectedType domain.TokenType) (*domain.Payload, error)

	// RotateKeys installs newSecret as the next master key version and publishes a
	// key_rotation audit event. Existing envelopes are not touched.
	// The rotation is in-memory only; see lifecycleUseCase.RotateKeys.
	RotateKeys(ctx context.Context, newSecret []byte) (*domain.KeyRotationEvent, error)

	// ReEncryptToken decrypts envelope with its own version and seals the payload
	// again under the current version.
	ReEncryptToken(envelope *domain.Envelope, expectedType domain.TokenType) (*domain.Envelope, error)

	// NeedsRotation reports whether the record's envelope is older than its type's
	// rotation interval.
	NeedsRotation(record *domain.TokenRecord) bool
}

// TokenUseCase is the boundary used by callers that issue and present tokens.
// Every decryption-side failure from Open is returned as domain.ErrTokenInvalid.
type TokenUseCase interface {
	// Issue encrypts and stores a new token record. ExpiresAt is set from the type's max age.
	Issue(ctx context.Context, input *domain.IssueTokenInput) (*domain.TokenRecord, error)

	// Open retrieves and decrypts a token owned by userID. expectedType may be empty.
	Open(ctx context.Context, tokenID, userID string, expectedType domain.TokenType) (*domain.Payload, error)

	// Revoke revokes one token owned by userID. Revoking a revoked token is a no-op.
	Revoke(ctx context.Context, tokenID, userID, reason string) error

	// RevokeAllForUser revokes every live token of userID and returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)

	// IsRevoked reports whether tokenID is revoked. Any lookup failure reports true.
	IsRevoked(ctx context.Context, tokenID string) bool

	// Cleanup deletes expired records and records revoked longer than the retention
	// period. Use dryRun=true to count without deleting.
	Cleanup(ctx context.Context, dryRun bool) (int64, error)
}
