package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	tokenUsecase "github.com/allisson/tokenvault/internal/token/usecase"
)

// RunRevokeToken revokes a single token owned by userID.
func RunRevokeToken(
	ctx context.Context,
	tokenUseCase tokenUsecase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tokenID, userID, reason, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if tokenID == "" || userID == "" {
		return fmt.Errorf("token-id and user-id are required")
	}

	if err := tokenUseCase.Revoke(ctx, tokenID, userID, reason); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	logger.Info("token revoked", slog.String("token_id", tokenID), slog.String("user_id", userID))

	if format == "json" {
		return writeJSON(writer, map[string]any{"token_id": tokenID, "user_id": userID, "revoked": 1})
	}
	_, _ = fmt.Fprintf(writer, "Token %s revoked\n", tokenID)
	return nil
}

// RunRevokeUserTokens revokes every live token owned by userID.
func RunRevokeUserTokens(
	ctx context.Context,
	tokenUseCase tokenUsecase.TokenUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID, reason, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("user-id is required")
	}

	count, err := tokenUseCase.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return fmt.Errorf("failed to revoke tokens for user: %w", err)
	}
	logger.Info("user tokens revoked", slog.String("user_id", userID), slog.Int("count", count))

	if format == "json" {
		return writeJSON(writer, map[string]any{"user_id": userID, "revoked": count})
	}
	_, _ = fmt.Fprintf(writer, "Revoked %d token(s) for user %s\n", count, userID)
	return nil
}
