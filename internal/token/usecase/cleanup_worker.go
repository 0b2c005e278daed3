package usecase

import (
	"context"
	"log/slog"
	"time"
)

// CleanupWorker periodically deletes expired and long-revoked token records.
type CleanupWorker struct {
	interval time.Duration
	tokens   TokenUseCase
	logger   *slog.Logger
}

// NewCleanupWorker creates a CleanupWorker that runs every interval.
func NewCleanupWorker(interval time.Duration, tokens TokenUseCase, logger *slog.Logger) *CleanupWorker {
	return &CleanupWorker{
		interval: interval,
		tokens:   tokens,
		logger:   logger,
	}
}

// Start runs cleanup on every tick until ctx is cancelled. Failures are logged and
// retried on the next tick.
func (w *CleanupWorker) Start(ctx context.Context) error {
	w.logger.Info("starting token cleanup worker", slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping token cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cleanup pass.
func (w *CleanupWorker) RunOnce(ctx context.Context) {
	count, err := w.tokens.Cleanup(ctx, false)
	if err != nil {
		w.logger.Error("token cleanup failed", slog.Any("error", err))
		return
	}
	if count > 0 {
		w.logger.Info("stale tokens deleted", slog.Int64("count", count))
	}
}
