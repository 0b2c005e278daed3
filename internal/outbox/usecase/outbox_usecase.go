// Package usecase delivers outbox events. Publisher writes audit events inside the
// caller's transaction and OutboxUseCase drains them to an EventProcessor with retries.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/tokenvault/internal/database"
	"github.com/allisson/tokenvault/internal/outbox/domain"
)

// Config holds outbox processing configuration.
type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// Retention is how long processed events are kept. Zero keeps them forever.
	Retention time.Duration
}

// OutboxEventRepository defines outbox event repository operations.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// EventProcessor delivers one event. A returned error schedules a retry.
type EventProcessor interface {
	Process(ctx context.Context, event *domain.OutboxEvent) error
}

// UseCase defines the interface for outbox use cases.
type UseCase interface {
	Start(ctx context.Context) error
	ProcessEvents(ctx context.Context) error
}

// OutboxUseCase processes pending outbox events in batches.
type OutboxUseCase struct {
	config         Config
	txManager      database.TxManager
	outboxRepo     OutboxEventRepository
	eventProcessor EventProcessor
	logger         *slog.Logger
	now            func() time.Time
}

// NewOutboxUseCase creates a new OutboxUseCase.
func NewOutboxUseCase(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxEventRepository,
	eventProcessor EventProcessor,
	logger *slog.Logger,
) *OutboxUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxUseCase{
		config:         config,
		txManager:      txManager,
		outboxRepo:     outboxRepo,
		eventProcessor: eventProcessor,
		logger:         logger,
		now:            time.Now,
	}
}

// Start processes events on every tick until ctx is cancelled.
func (uc *OutboxUseCase) Start(ctx context.Context) error {
	uc.logger.Info("starting outbox event processor",
		slog.Duration("interval", uc.config.Interval),
		slog.Int("batch_size", uc.config.BatchSize),
	)

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stopping outbox event processor")
			return ctx.Err()
		case <-ticker.C:
			if err := uc.ProcessEvents(ctx); err != nil {
				uc.logger.Error("failed to process events", slog.Any("error", err))
			}
			uc.prune(ctx)
		}
	}
}

// ProcessEvents locks a batch of pending events and delivers them in one transaction.
// A delivery failure is recorded on the event; only repository errors abort the batch.
func (uc *OutboxUseCase) ProcessEvents(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.outboxRepo.GetPendingEvents(ctx, uc.config.BatchSize)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		uc.logger.Debug("processing events", slog.Int("count", len(events)))

		for _, event := range events {
			if err := uc.eventProcessor.Process(ctx, event); err != nil {
				uc.logger.Error("failed to process event",
					slog.String("event_id", event.ID.String()),
					slog.String("event_type", event.EventType),
					slog.Int("retries", event.Retries+1),
					slog.Any("error", err),
				)
				event.MarkFailed(err, uc.config.MaxRetries)
			} else {
				event.MarkProcessed(uc.now())
			}

			if err := uc.outboxRepo.Update(ctx, event); err != nil {
				return err
			}
		}

		return nil
	})
}

func (uc *OutboxUseCase) prune(ctx context.Context) {
	if uc.config.Retention <= 0 {
		return
	}
	count, err := uc.outboxRepo.DeleteProcessedBefore(ctx, uc.now().Add(-uc.config.Retention))
	if err != nil {
		uc.logger.Error("failed to prune processed events", slog.Any("error", err))
		return
	}
	if count > 0 {
		uc.logger.Debug("processed events pruned", slog.Int64("count", count))
	}
}
