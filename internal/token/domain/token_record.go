package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenRecord is the persisted form of an issued token. ExpiresAt is fixed at
// creation; extending a token's life requires a new record.
type TokenRecord struct {
	TokenID          string
	UserID           string
	TokenType        TokenType
	Envelope         *Envelope
	Purpose          string
	ExpiresAt        time.Time
	DeviceInfo       *string
	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason *string
	LastAccessedAt   *time.Time
	CreatedAt        time.Time
}

// IsExpired reports whether the record expired before now. All comparisons use UTC.
func (r *TokenRecord) IsExpired(now time.Time) bool {
	return now.UTC().After(r.ExpiresAt.UTC())
}

// IsUsable reports whether the record is neither expired nor revoked.
func (r *TokenRecord) IsUsable(now time.Time) bool {
	return !r.Revoked && !r.IsExpired(now)
}

// RevocationEntry is an append-only audit row written on every revocation.
type RevocationEntry struct {
	ID        uuid.UUID
	TokenID   string
	UserID    string
	Reason    string
	RevokedAt time.Time
}

// IssueTokenInput carries the data required to encrypt and persist a new token.
type IssueTokenInput struct {
	// TokenID is optional; a UUIDv7 is generated when empty.
	TokenID    string
	UserID     string
	Token      string
	Type       TokenType
	Purpose    string
	Metadata   map[string]string
	DeviceInfo *string
}
