package usecase

import (
	"context"
	"time"

	"github.com/allisson/tokenvault/internal/outbox/domain"
)

// Publisher writes audit events to the outbox. When ctx carries a transaction the
// event is written in it, so the event exists if and only if the change committed.
type Publisher struct {
	outboxRepo OutboxEventRepository
	now        func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(outboxRepo OutboxEventRepository) *Publisher {
	return &Publisher{outboxRepo: outboxRepo, now: time.Now}
}

// Publish marshals payload to JSON and stores it as a pending event.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	event, err := domain.NewOutboxEvent(eventType, payload, p.now())
	if err != nil {
		return err
	}
	return p.outboxRepo.Create(ctx, event)
}
