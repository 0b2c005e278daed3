package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/tokenvault/internal/app"
	"github.com/allisson/tokenvault/internal/config"
)

// RunServer starts the long running token service: the admin HTTP server, the
// token cleanup worker and the audit outbox processor.
// Blocks until receiving SIGINT/SIGTERM or until one component fails. On shutdown
// the admin server is stopped within DBConnMaxLifetime and the container is closed,
// which zeroes the master keys.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version), slog.String("env", cfg.AppEnv))

	defer closeContainer(container, logger)

	// Fail fast on key configuration before anything starts serving.
	if _, err := container.Codec(); err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	adminServer, err := container.AdminServer()
	if err != nil {
		return fmt.Errorf("failed to initialize admin server: %w", err)
	}

	cleanupWorker, err := container.CleanupWorker()
	if err != nil {
		return fmt.Errorf("failed to initialize cleanup worker: %w", err)
	}

	outboxUseCase, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox processor: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := adminServer.Start(gCtx); err != nil {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
		defer shutdownCancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin server shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(cleanupWorker.Start(gCtx))
	})

	g.Go(func() error {
		return ignoreCanceled(outboxUseCase.Start(gCtx))
	})

	return g.Wait()
}

// ignoreCanceled treats a context cancellation as a clean stop.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
