package usecase

import (
	"context"
	"time"

	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/metrics"
	"github.com/allisson/tokenvault/internal/token/domain"
)

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// tokenUseCaseWithMetrics decorates TokenUseCase with metrics instrumentation.
type tokenUseCaseWithMetrics struct {
	next    TokenUseCase
	metrics metrics.BusinessMetrics
}

// NewTokenUseCaseWithMetrics wraps a TokenUseCase with metrics recording.
func NewTokenUseCaseWithMetrics(useCase TokenUseCase, m metrics.BusinessMetrics) TokenUseCase {
	return &tokenUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (t *tokenUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := statusOf(err)
	t.metrics.RecordOperation(ctx, "token", operation, status)
	t.metrics.RecordDuration(ctx, "token", operation, time.Since(start), status)
}

// Issue records metrics for token issuance.
func (t *tokenUseCaseWithMetrics) Issue(
	ctx context.Context,
	input *domain.IssueTokenInput,
) (*domain.TokenRecord, error) {
	start := time.Now()
	record, err := t.next.Issue(ctx, input)
	t.record(ctx, "issue", start, err)
	if err == nil {
		t.metrics.RecordTokenEvent(ctx, record.TokenType.String(), "issued")
	}
	return record, err
}

// Open records metrics for token presentation. Rejections are counted per expected type.
func (t *tokenUseCaseWithMetrics) Open(
	ctx context.Context,
	tokenID, userID string,
	expectedType domain.TokenType,
) (*domain.Payload, error) {
	start := time.Now()
	payload, err := t.next.Open(ctx, tokenID, userID, expectedType)
	t.record(ctx, "open", start, err)

	switch {
	case err == nil:
		t.metrics.RecordTokenEvent(ctx, payload.Type.String(), "opened")
	case apperrors.Is(err, domain.ErrTokenInvalid):
		tokenType := expectedType.String()
		if tokenType == "" {
			tokenType = "unknown"
		}
		t.metrics.RecordTokenEvent(ctx, tokenType, "rejected")
	}
	return payload, err
}

// Revoke records metrics for single token revocation.
func (t *tokenUseCaseWithMetrics) Revoke(ctx context.Context, tokenID, userID, reason string) error {
	start := time.Now()
	err := t.next.Revoke(ctx, tokenID, userID, reason)
	t.record(ctx, "revoke", start, err)
	return err
}

// RevokeAllForUser records metrics for bulk revocation.
func (t *tokenUseCaseWithMetrics) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	start := time.Now()
	count, err := t.next.RevokeAllForUser(ctx, userID, reason)
	t.record(ctx, "revoke_all_for_user", start, err)
	return count, err
}

// IsRevoked records metrics for revocation checks. A revoked result is not an error.
func (t *tokenUseCaseWithMetrics) IsRevoked(ctx context.Context, tokenID string) bool {
	start := time.Now()
	revoked := t.next.IsRevoked(ctx, tokenID)
	t.record(ctx, "is_revoked", start, nil)
	return revoked
}

// Cleanup records metrics for stale record cleanup.
func (t *tokenUseCaseWithMetrics) Cleanup(ctx context.Context, dryRun bool) (int64, error) {
	start := time.Now()
	count, err := t.next.Cleanup(ctx, dryRun)
	t.record(ctx, "cleanup", start, err)
	return count, err
}

// lifecycleUseCaseWithMetrics decorates LifecycleUseCase with metrics instrumentation.
type lifecycleUseCaseWithMetrics struct {
	next    LifecycleUseCase
	metrics metrics.BusinessMetrics
}

// NewLifecycleUseCaseWithMetrics wraps a LifecycleUseCase with metrics recording.
func NewLifecycleUseCaseWithMetrics(useCase LifecycleUseCase, m metrics.BusinessMetrics) LifecycleUseCase {
	return &lifecycleUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (l *lifecycleUseCaseWithMetrics) record(operation string, start time.Time, err error) {
	ctx := context.Background()
	status := statusOf(err)
	l.metrics.RecordOperation(ctx, "lifecycle", operation, status)
	l.metrics.RecordDuration(ctx, "lifecycle", operation, time.Since(start), status)
}

// EncryptToken records metrics for envelope encryption.
func (l *lifecycleUseCaseWithMetrics) EncryptToken(
	token string,
	tokenType domain.TokenType,
	metadata map[string]string,
) (*domain.Envelope, error) {
	start := time.Now()
	envelope, err := l.next.EncryptToken(token, tokenType, metadata)
	l.record("encrypt", start, err)
	return envelope, err
}

// DecryptToken records metrics for envelope decryption.
func (l *lifecycleUseCaseWithMetrics) DecryptToken(
	envelope *domain.Envelope,
	expectedType domain.TokenType,
) (*domain.Payload, error) {
	start := time.Now()
	payload, err := l.next.DecryptToken(envelope, expectedType)
	l.record("decrypt", start, err)
	return payload, err
}

// RotateKeys records metrics for master key rotation.
func (l *lifecycleUseCaseWithMetrics) RotateKeys(
	ctx context.Context,
	newSecret []byte,
) (*domain.KeyRotationEvent, error) {
	start := time.Now()
	event, err := l.next.RotateKeys(ctx, newSecret)
	l.record("rotate_keys", start, err)
	return event, err
}

// ReEncryptToken records metrics for envelope migration.
func (l *lifecycleUseCaseWithMetrics) ReEncryptToken(
	envelope *domain.Envelope,
	expectedType domain.TokenType,
) (*domain.Envelope, error) {
	start := time.Now()
	migrated, err := l.next.ReEncryptToken(envelope, expectedType)
	l.record("re_encrypt", start, err)
	if err == nil {
		l.metrics.RecordTokenEvent(context.Background(), migrated.Type.String(), "re_encrypted")
	}
	return migrated, err
}

// NeedsRotation is not instrumented.
func (l *lifecycleUseCaseWithMetrics) NeedsRotation(record *domain.TokenRecord) bool {
	return l.next.NeedsRotation(record)
}
