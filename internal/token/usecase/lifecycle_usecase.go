package usecase

import (
	"context"
	"log/slog"
	"slices"
	"time"

	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/token/domain"
)

// lifecycleUseCase implements LifecycleUseCase.
type lifecycleUseCase struct {
	codec    EnvelopeCodec
	keys     KeyRotator
	policies domain.PolicySet
	audit    AuditPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewLifecycleUseCase creates a LifecycleUseCase. audit may be nil, in which case
// rotations are only logged.
func NewLifecycleUseCase(
	codec EnvelopeCodec,
	keys KeyRotator,
	policies domain.PolicySet,
	audit AuditPublisher,
	logger *slog.Logger,
) LifecycleUseCase {
	return &lifecycleUseCase{
		codec:    codec,
		keys:     keys,
		policies: policies,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// EncryptToken seals token under the current master key version.
func (l *lifecycleUseCase) EncryptToken(
	token string,
	tokenType domain.TokenType,
	metadata map[string]string,
) (*domain.Envelope, error) {
	return l.codec.Encrypt(token, tokenType, metadata)
}

// DecryptToken opens envelope using the key of its own version.
func (l *lifecycleUseCase) DecryptToken(
	envelope *domain.Envelope,
	expectedType domain.TokenType,
) (*domain.Payload, error) {
	return l.codec.Decrypt(envelope, expectedType)
}

// RotateKeys installs newSecret and advances the current version.
//
// A failed rotation leaves the previous version current. A failure to publish the
// audit event is logged and does not undo the rotation.
//
// The new key lives only in this process's KeyStore. It is not persisted and other
// replicas are not told about it, so they would reject envelopes sealed under it with
// ErrUnknownKeyVersion. RotateKeys is meant for single-process use. Fleet-wide
// rotation goes through the rotate-master-key command and a MASTER_KEYS redeploy.
func (l *lifecycleUseCase) RotateKeys(ctx context.Context, newSecret []byte) (*domain.KeyRotationEvent, error) {
	oldVersion, newVersion, err := l.keys.Rotate(newSecret)
	if err != nil {
		l.logger.Error("master key rotation failed",
			slog.Int("current_version", l.keys.CurrentVersion()),
			slog.Any("error", err),
		)
		return nil, apperrors.Wrap(err, "failed to rotate master key")
	}

	event := &domain.KeyRotationEvent{
		OldVersion:    oldVersion,
		NewVersion:    newVersion,
		Timestamp:     l.now().UTC(),
		AffectedTypes: slices.Clone(domain.TokenTypes),
	}

	l.logger.Info("master key rotated",
		slog.Int("old_version", oldVersion),
		slog.Int("new_version", newVersion),
	)

	if l.audit != nil {
		if err := l.audit.Publish(ctx, domain.EventTypeKeyRotation, event); err != nil {
			l.logger.Error("failed to publish key rotation event",
				slog.Int("new_version", newVersion),
				slog.Any("error", err),
			)
		}
	}

	return event, nil
}

// ReEncryptToken migrates envelope to the current key version. The returned
// envelope carries a fresh createdAt.
func (l *lifecycleUseCase) ReEncryptToken(
	envelope *domain.Envelope,
	expectedType domain.TokenType,
) (*domain.Envelope, error) {
	payload, err := l.codec.Decrypt(envelope, expectedType)
	if err != nil {
		return nil, err
	}
	return l.codec.Encrypt(payload.Token, payload.Type, payload.Metadata)
}

// NeedsRotation measures age from the creation time of the record's current
// envelope, which equals the record's CreatedAt until the first re-encryption.
func (l *lifecycleUseCase) NeedsRotation(record *domain.TokenRecord) bool {
	policy, err := l.policies.For(record.TokenType)
	if err != nil {
		return false
	}
	createdAt := record.CreatedAt
	if record.Envelope != nil {
		createdAt = record.Envelope.CreatedAt
	}
	return l.now().Sub(createdAt) > policy.RotationInterval
}
