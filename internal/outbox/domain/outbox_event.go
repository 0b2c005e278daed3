// Package domain defines the outbox event used to deliver audit events after the
// transaction that produced them commits.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/tokenvault/internal/errors"
)

// OutboxEventStatus represents the delivery status of an outbox event.
type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "pending"
	OutboxEventStatusProcessed OutboxEventStatus = "processed"
	OutboxEventStatusFailed    OutboxEventStatus = "failed"
)

// ErrInvalidEventType indicates an empty event type.
var ErrInvalidEventType = apperrors.Wrap(apperrors.ErrInvalidInput, "outbox event type is required")

// OutboxEvent is an audit event waiting to be delivered. Payload holds the JSON
// encoding of the event body.
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   string
	Payload     string
	Status      OutboxEventStatus
	Retries     int
	LastError   *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEvent builds a pending event with a UUIDv7 id and payload marshaled to JSON.
func NewOutboxEvent(eventType string, payload any, now time.Time) (*OutboxEvent, error) {
	if eventType == "" {
		return nil, ErrInvalidEventType
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal outbox payload")
	}
	now = now.UTC()
	return &OutboxEvent{
		ID:        uuid.Must(uuid.NewV7()),
		EventType: eventType,
		Payload:   string(body),
		Status:    OutboxEventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkProcessed records a successful delivery.
func (e *OutboxEvent) MarkProcessed(now time.Time) {
	now = now.UTC()
	e.Status = OutboxEventStatusProcessed
	e.ProcessedAt = &now
	e.LastError = nil
}

// MarkFailed records a delivery failure. The event becomes failed once retries reach
// maxRetries and stays pending otherwise.
func (e *OutboxEvent) MarkFailed(cause error, maxRetries int) {
	e.Retries++
	msg := cause.Error()
	e.LastError = &msg
	if e.Retries >= maxRetries {
		e.Status = OutboxEventStatusFailed
	}
}
