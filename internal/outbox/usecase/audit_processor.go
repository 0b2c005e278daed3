package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/metrics"
	"github.com/allisson/tokenvault/internal/outbox/domain"
	tokenDomain "github.com/allisson/tokenvault/internal/token/domain"
)

// AuditEventProcessor delivers audit events to the structured log under the "audit"
// logger group and counts them per event type.
type AuditEventProcessor struct {
	logger  *slog.Logger
	metrics metrics.BusinessMetrics
}

// NewAuditEventProcessor creates an AuditEventProcessor. logger and m may be nil.
func NewAuditEventProcessor(logger *slog.Logger, m metrics.BusinessMetrics) *AuditEventProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoOpBusinessMetrics()
	}
	return &AuditEventProcessor{
		logger:  logger.With(slog.String("log_type", "audit")),
		metrics: m,
	}
}

// Process decodes the payload of a known event type and logs it. Undecodable payloads
// return an error so the event is retried and eventually marked failed.
func (p *AuditEventProcessor) Process(ctx context.Context, event *domain.OutboxEvent) error {
	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.Time("event_created_at", event.CreatedAt),
	}

	switch event.EventType {
	case tokenDomain.EventTypeKeyRotation:
		var rotation tokenDomain.KeyRotationEvent
		if err := json.Unmarshal([]byte(event.Payload), &rotation); err != nil {
			return apperrors.Wrap(err, "failed to decode key rotation event")
		}
		attrs = append(attrs,
			slog.Int("old_version", rotation.OldVersion),
			slog.Int("new_version", rotation.NewVersion),
			slog.Time("rotated_at", rotation.Timestamp),
			slog.Any("affected_types", rotation.AffectedTypes),
		)
		p.logger.InfoContext(ctx, "master key rotated", attrs...)

	case tokenDomain.EventTypeTokenRevoked:
		var revoked tokenDomain.TokenRevokedEvent
		if err := json.Unmarshal([]byte(event.Payload), &revoked); err != nil {
			return apperrors.Wrap(err, "failed to decode token revoked event")
		}
		attrs = append(attrs,
			slog.String("user_id", revoked.UserID),
			slog.Any("token_ids", revoked.TokenIDs),
			slog.String("reason", revoked.Reason),
			slog.Time("revoked_at", revoked.RevokedAt),
		)
		p.logger.InfoContext(ctx, "tokens revoked", attrs...)

	default:
		attrs = append(attrs, slog.String("event_type", event.EventType))
		p.logger.WarnContext(ctx, "unknown audit event type", attrs...)
	}

	p.metrics.RecordOperation(ctx, "audit", event.EventType, "success")
	return nil
}
