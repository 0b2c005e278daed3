package domain

import (
	"time"
)

// Audit event types published to the outbox.
const (
	EventTypeKeyRotation  = "key_rotation"
	EventTypeTokenRevoked = "token_revoked"
)

// KeyRotationEvent records a master key rotation.
type KeyRotationEvent struct {
	OldVersion    int         `json:"oldVersion"`
	NewVersion    int         `json:"newVersion"`
	Timestamp     time.Time   `json:"timestamp"`
	AffectedTypes []TokenType `json:"affectedTypes"`
}

// TokenRevokedEvent records one or more revocations for a user.
type TokenRevokedEvent struct {
	TokenIDs  []string  `json:"tokenIds"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revokedAt"`
}
