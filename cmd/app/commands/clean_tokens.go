package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	tokenUsecase "github.com/allisson/tokenvault/internal/token/usecase"
)

// RunCleanTokens deletes expired token records and records revoked longer than the
// configured retention. Supports dry-run mode to preview the count and both text and
// JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCleanTokens(
	ctx context.Context,
	tokenUseCase tokenUsecase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	dryRun bool,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("cleaning stale tokens", slog.Bool("dry_run", dryRun))

	count, err := tokenUseCase.Cleanup(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("failed to cleanup tokens: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{"count": count, "dry_run": dryRun}); err != nil {
			return err
		}
	} else if dryRun {
		_, _ = fmt.Fprintf(writer, "Dry-run mode: Would delete %d stale token(s)\n", count)
	} else {
		_, _ = fmt.Fprintf(writer, "Successfully deleted %d stale token(s)\n", count)
	}

	logger.Info("cleanup completed", slog.Int64("count", count), slog.Bool("dry_run", dryRun))
	return nil
}
