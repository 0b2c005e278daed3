package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"golang.org/x/time/rate"

	"github.com/allisson/tokenvault/internal/database"
	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/token/domain"
	appValidation "github.com/allisson/tokenvault/internal/validation"
)

// Defaults applied to zero TokenUseCaseConfig fields.
const (
	DefaultRevokedRetention = 30 * 24 * time.Hour
	DefaultReEncryptRate    = 50
	DefaultReEncryptBurst   = 10
)

// TokenUseCaseConfig configures the token gateway.
type TokenUseCaseConfig struct {
	// RevokedRetention is how long a revoked record survives cleanup.
	RevokedRetention time.Duration
	// ReEncryptRate limits lazy re-encryption on Open, in envelopes per second.
	ReEncryptRate float64
	// ReEncryptBurst is the token bucket size for lazy re-encryption.
	ReEncryptBurst int
}

// tokenUseCase implements TokenUseCase.
type tokenUseCase struct {
	config    TokenUseCaseConfig
	txManager database.TxManager
	lifecycle LifecycleUseCase
	keys      KeyRotator
	policies  domain.PolicySet
	repo      TokenRepository
	cache     RevocationCache
	audit     AuditPublisher
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
}

// NewTokenUseCase creates a TokenUseCase. cache and audit may be nil.
func NewTokenUseCase(
	config TokenUseCaseConfig,
	txManager database.TxManager,
	lifecycle LifecycleUseCase,
	keys KeyRotator,
	policies domain.PolicySet,
	repo TokenRepository,
	cache RevocationCache,
	audit AuditPublisher,
	logger *slog.Logger,
) TokenUseCase {
	if config.RevokedRetention <= 0 {
		config.RevokedRetention = DefaultRevokedRetention
	}
	if config.ReEncryptRate <= 0 {
		config.ReEncryptRate = DefaultReEncryptRate
	}
	if config.ReEncryptBurst <= 0 {
		config.ReEncryptBurst = DefaultReEncryptBurst
	}
	return &tokenUseCase{
		config:    config,
		txManager: txManager,
		lifecycle: lifecycle,
		keys:      keys,
		policies:  policies,
		repo:      repo,
		cache:     cache,
		audit:     audit,
		limiter:   rate.NewLimiter(rate.Limit(config.ReEncryptRate), config.ReEncryptBurst),
		logger:    logger,
		now:       time.Now,
	}
}

func validateIssueInput(input *domain.IssueTokenInput) error {
	err := validation.ValidateStruct(input,
		validation.Field(&input.TokenID, validation.Length(0, 255), appValidation.NoWhitespace),
		validation.Field(&input.UserID, validation.Required, validation.Length(1, 255), appValidation.NotBlank),
		validation.Field(&input.Token, validation.Required, validation.Length(1, domain.MaxTokenSize)),
		validation.Field(&input.Type, validation.Required, appValidation.TokenType),
		validation.Field(&input.Purpose, validation.Length(0, 255), appValidation.NoControlChars),
		validation.Field(&input.Metadata,
			validation.Length(0, domain.MaxMetadataEntries),
			appValidation.MetadataKeys,
		),
	)
	return appValidation.WrapValidationError(err)
}

// Issue encrypts input.Token and stores a new record. Re-issuing a live token id for
// the same user replaces the envelope but keeps the original expiry. Revoked and
// expired ids are rejected, including revoked ids whose record was already cleaned up.
func (t *tokenUseCase) Issue(ctx context.Context, input *domain.IssueTokenInput) (*domain.TokenRecord, error) {
	if err := validateIssueInput(input); err != nil {
		return nil, err
	}

	policy, err := t.policies.For(input.Type)
	if err != nil {
		return nil, err
	}

	envelope, err := t.lifecycle.EncryptToken(input.Token, input.Type, input.Metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encrypt token")
	}

	tokenID := input.TokenID
	if tokenID == "" {
		tokenID = uuid.Must(uuid.NewV7()).String()
	}

	record := &domain.TokenRecord{
		TokenID:    tokenID,
		UserID:     input.UserID,
		TokenType:  input.Type,
		Envelope:   envelope,
		Purpose:    input.Purpose,
		ExpiresAt:  envelope.CreatedAt.Add(policy.MaxAge),
		DeviceInfo: input.DeviceInfo,
		CreatedAt:  envelope.CreatedAt,
	}

	err = t.txManager.WithTx(ctx, func(ctx context.Context) error {
		existing, err := t.repo.Get(ctx, tokenID)
		switch {
		case err == nil:
			if existing.UserID != record.UserID {
				return apperrors.Wrap(apperrors.ErrConflict, "token id belongs to another user")
			}
			if existing.Revoked {
				return domain.ErrTokenIDRevoked
			}
			if existing.IsExpired(t.now().UTC()) {
				return domain.ErrTokenIDExpired
			}
			record.ExpiresAt = existing.ExpiresAt
			record.CreatedAt = existing.CreatedAt
		case apperrors.Is(err, domain.ErrTokenNotFound):
			revoked, err := t.repo.IsRevoked(ctx, tokenID)
			if err != nil {
				return err
			}
			if revoked {
				return domain.ErrTokenIDRevoked
			}
		default:
			return err
		}
		return t.repo.Upsert(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("token issued",
		slog.String("token_id", record.TokenID),
		slog.String("token_type", record.TokenType.String()),
		slog.Int("key_version", envelope.Version),
	)
	return record, nil
}

// Open runs the revocation check, retrieves the record, verifies owner and expiry,
// decrypts the envelope and then migrates it to the current key when due.
func (t *tokenUseCase) Open(
	ctx context.Context,
	tokenID, userID string,
	expectedType domain.TokenType,
) (*domain.Payload, error) {
	if t.IsRevoked(ctx, tokenID) {
		return nil, t.reject(tokenID, expectedType, domain.ErrRevoked)
	}

	record, err := t.retrieve(ctx, tokenID, userID)
	if err != nil {
		if domain.IsDecryptionSide(err) {
			return nil, t.reject(tokenID, expectedType, err)
		}
		return nil, err
	}

	payload, err := t.lifecycle.DecryptToken(record.Envelope, expectedType)
	if err != nil {
		if domain.IsDecryptionSide(err) {
			return nil, t.reject(tokenID, record.TokenType, err)
		}
		return nil, err
	}

	now := t.now().UTC()
	if err := t.repo.TouchLastAccessed(ctx, tokenID, now); err != nil {
		t.logger.Warn("failed to update last access time",
			slog.String("token_id", tokenID),
			slog.Any("error", err),
		)
	}

	t.migrate(ctx, record)
	return payload, nil
}

// retrieve loads the record and applies the ownership, revocation and expiry checks
// independently of the in-envelope age check.
func (t *tokenUseCase) retrieve(ctx context.Context, tokenID, userID string) (*domain.TokenRecord, error) {
	record, err := t.repo.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, domain.ErrTokenNotFound
	}
	if record.Revoked {
		return nil, domain.ErrRevoked
	}
	if record.IsExpired(t.now()) {
		return nil, domain.ErrExpired
	}
	return record, nil
}

// migrate re-encrypts the record under the current key version when its envelope
// is on an older version or past its rotation interval. Expiry is never changed.
func (t *tokenUseCase) migrate(ctx context.Context, record *domain.TokenRecord) {
	stale := record.Envelope.Version != t.keys.CurrentVersion()
	if !stale && !t.lifecycle.NeedsRotation(record) {
		return
	}
	if !t.limiter.Allow() {
		t.logger.Debug("re-encryption deferred by rate limit", slog.String("token_id", record.TokenID))
		return
	}

	oldVersion := record.Envelope.Version
	envelope, err := t.lifecycle.ReEncryptToken(record.Envelope, record.TokenType)
	if err != nil {
		t.logger.Warn("failed to re-encrypt token",
			slog.String("token_id", record.TokenID),
			slog.Any("error", err),
		)
		return
	}

	migrated := *record
	migrated.Envelope = envelope
	if err := t.repo.Upsert(ctx, &migrated); err != nil {
		t.logger.Warn("failed to store re-encrypted token",
			slog.String("token_id", record.TokenID),
			slog.Any("error", err),
		)
		return
	}

	t.logger.Info("token re-encrypted",
		slog.String("token_id", record.TokenID),
		slog.Int("old_version", oldVersion),
		slog.Int("new_version", envelope.Version),
	)
}

// reject logs the specific cause and returns the opaque error.
func (t *tokenUseCase) reject(tokenID string, tokenType domain.TokenType, cause error) error {
	t.logger.Warn("token rejected",
		slog.String("token_id", tokenID),
		slog.String("token_type", tokenType.String()),
		slog.String("cause", cause.Error()),
	)
	return domain.ErrTokenInvalid
}

// Revoke flags the record, appends a revocation entry and publishes an audit event
// in one transaction, then adds the id to the revocation cache.
func (t *tokenUseCase) Revoke(ctx context.Context, tokenID, userID, reason string) error {
	revokedAt := t.now().UTC()

	err := t.txManager.WithTx(ctx, func(ctx context.Context) error {
		record, err := t.repo.Get(ctx, tokenID)
		if err != nil {
			return err
		}
		if record.UserID != userID {
			return domain.ErrTokenNotFound
		}
		if record.Revoked {
			return nil
		}
		if err := t.revokeOne(ctx, tokenID, userID, reason, revokedAt); err != nil {
			return err
		}
		return t.publishRevoked(ctx, []string{tokenID}, userID, reason, revokedAt)
	})
	if err != nil {
		return err
	}

	t.cacheRevoked(ctx, tokenID)
	t.logger.Info("token revoked", slog.String("token_id", tokenID), slog.String("reason", reason))
	return nil
}

// RevokeAllForUser revokes every live record of userID.
func (t *tokenUseCase) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	revokedAt := t.now().UTC()
	var tokenIDs []string

	err := t.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		tokenIDs, err = t.repo.ListActiveTokenIDs(ctx, userID, revokedAt)
		if err != nil {
			return err
		}
		if len(tokenIDs) == 0 {
			return nil
		}
		for _, tokenID := range tokenIDs {
			if err := t.revokeOne(ctx, tokenID, userID, reason, revokedAt); err != nil {
				return err
			}
		}
		return t.publishRevoked(ctx, tokenIDs, userID, reason, revokedAt)
	})
	if err != nil {
		return 0, err
	}

	t.cacheRevoked(ctx, tokenIDs...)
	if len(tokenIDs) > 0 {
		t.logger.Info("user tokens revoked",
			slog.String("user_id", userID),
			slog.Int("count", len(tokenIDs)),
			slog.String("reason", reason),
		)
	}
	return len(tokenIDs), nil
}

func (t *tokenUseCase) revokeOne(ctx context.Context, tokenID, userID, reason string, revokedAt time.Time) error {
	if err := t.repo.MarkRevoked(ctx, tokenID, reason, revokedAt); err != nil {
		return err
	}
	return t.repo.CreateRevocationEntry(ctx, &domain.RevocationEntry{
		ID:        uuid.Must(uuid.NewV7()),
		TokenID:   tokenID,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: revokedAt,
	})
}

func (t *tokenUseCase) publishRevoked(
	ctx context.Context,
	tokenIDs []string,
	userID, reason string,
	revokedAt time.Time,
) error {
	if t.audit == nil {
		return nil
	}
	return t.audit.Publish(ctx, domain.EventTypeTokenRevoked, &domain.TokenRevokedEvent{
		TokenIDs:  tokenIDs,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: revokedAt,
	})
}

func (t *tokenUseCase) cacheRevoked(ctx context.Context, tokenIDs ...string) {
	if t.cache == nil || len(tokenIDs) == 0 {
		return
	}
	if err := t.cache.Add(ctx, tokenIDs...); err != nil {
		t.logger.Warn("failed to cache revocation", slog.Int("count", len(tokenIDs)), slog.Any("error", err))
	}
}

// IsRevoked consults the cache first and falls back to the repository. A
// repository failure reports the token as revoked.
func (t *tokenUseCase) IsRevoked(ctx context.Context, tokenID string) bool {
	if t.cache != nil {
		cached, err := t.cache.Contains(ctx, tokenID)
		switch {
		case err != nil:
			t.logger.Warn("revocation cache unavailable", slog.Any("error", err))
		case cached:
			return true
		}
	}

	revoked, err := t.repo.IsRevoked(ctx, tokenID)
	if err != nil {
		t.logger.Error("revocation check failed, treating token as revoked",
			slog.String("token_id", tokenID),
			slog.Any("error", err),
		)
		return true
	}
	if revoked {
		t.cacheRevoked(ctx, tokenID)
	}
	return revoked
}

// Cleanup deletes records that expired before now or were revoked before the
// retention cutoff.
func (t *tokenUseCase) Cleanup(ctx context.Context, dryRun bool) (int64, error) {
	now := t.now().UTC()
	revokedBefore := now.Add(-t.config.RevokedRetention)

	if dryRun {
		count, err := t.repo.CountStale(ctx, now, revokedBefore)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count stale tokens")
		}
		return count, nil
	}

	count, err := t.repo.DeleteStale(ctx, now, revokedBefore)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete stale tokens")
	}
	return count, nil
}
