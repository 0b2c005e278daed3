package usecase

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
	"github.com/allisson/tokenvault/internal/token/domain"
	tokenService "github.com/allisson/tokenvault/internal/token/service"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func randomSecret(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cryptoDomain.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

// lifecycleFixture wires a real key store, codec and lifecycle use case on a fake clock.
type lifecycleFixture struct {
	clock     *testClock
	keys      *cryptoDomain.KeyStore
	codec     *tokenService.Codec
	lifecycle LifecycleUseCase
}

func newLifecycleFixture(t *testing.T, audit AuditPublisher) *lifecycleFixture {
	t.Helper()

	clock := &testClock{now: t0}
	keys, err := cryptoDomain.NewKeyStore([]*cryptoDomain.MasterKey{{Version: 1, Key: randomSecret(t)}}, 1)
	require.NoError(t, err)
	t.Cleanup(keys.Close)

	kdf, err := cryptoService.NewKeyDerivation(cryptoService.MinKDFIterations)
	require.NoError(t, err)

	codec := tokenService.NewCodec(keys, kdf, cryptoService.NewAEADManager(), domain.DefaultPolicySet(),
		tokenService.WithClock(clock.Now))

	lifecycle := NewLifecycleUseCase(codec, keys, domain.DefaultPolicySet(), audit, discardLogger())
	lifecycle.(*lifecycleUseCase).now = clock.Now

	return &lifecycleFixture{clock: clock, keys: keys, codec: codec, lifecycle: lifecycle}
}

// memoryTokenRepository is an in-memory TokenRepository with read-your-writes semantics.
type memoryTokenRepository struct {
	mu          sync.Mutex
	records     map[string]domain.TokenRecord
	revocations []domain.RevocationEntry
	unavailable bool
}

func newMemoryTokenRepository() *memoryTokenRepository {
	return &memoryTokenRepository{records: make(map[string]domain.TokenRecord)}
}

func (r *memoryTokenRepository) fail() error {
	if r.unavailable {
		return domain.ErrStorage
	}
	return nil
}

func (r *memoryTokenRepository) Upsert(_ context.Context, record *domain.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	if existing, ok := r.records[record.TokenID]; ok {
		existing.Envelope = record.Envelope
		existing.TokenType = record.TokenType
		existing.Purpose = record.Purpose
		existing.DeviceInfo = record.DeviceInfo
		r.records[record.TokenID] = existing
		return nil
	}
	r.records[record.TokenID] = *record
	return nil
}

func (r *memoryTokenRepository) Get(_ context.Context, tokenID string) (*domain.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return nil, err
	}
	record, ok := r.records[tokenID]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &record, nil
}

func (r *memoryTokenRepository) MarkRevoked(_ context.Context, tokenID, reason string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	record, ok := r.records[tokenID]
	if !ok || record.Revoked {
		return domain.ErrTokenNotFound
	}
	record.Revoked = true
	record.RevokedAt = &revokedAt
	record.RevocationReason = &reason
	r.records[tokenID] = record
	return nil
}

func (r *memoryTokenRepository) CreateRevocationEntry(_ context.Context, entry *domain.RevocationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.revocations = append(r.revocations, *entry)
	return nil
}

func (r *memoryTokenRepository) ListActiveTokenIDs(_ context.Context, userID string, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return nil, err
	}
	var ids []string
	for id, record := range r.records {
		if record.UserID == userID && record.IsUsable(now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *memoryTokenRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return false, err
	}
	if record, ok := r.records[tokenID]; ok && record.Revoked {
		return true, nil
	}
	for _, entry := range r.revocations {
		if entry.TokenID == tokenID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryTokenRepository) TouchLastAccessed(_ context.Context, tokenID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	if record, ok := r.records[tokenID]; ok {
		record.LastAccessedAt = &at
		r.records[tokenID] = record
	}
	return nil
}

func (r *memoryTokenRepository) stale(record domain.TokenRecord, expiredBefore, revokedBefore time.Time) bool {
	if record.ExpiresAt.Before(expiredBefore) {
		return true
	}
	return record.Revoked && record.RevokedAt != nil && record.RevokedAt.Before(revokedBefore)
}

func (r *memoryTokenRepository) DeleteStale(_ context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return 0, err
	}
	var count int64
	for id, record := range r.records {
		if r.stale(record, expiredBefore, revokedBefore) {
			delete(r.records, id)
			count++
		}
	}
	return count, nil
}

func (r *memoryTokenRepository) CountStale(_ context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return 0, err
	}
	var count int64
	for _, record := range r.records {
		if r.stale(record, expiredBefore, revokedBefore) {
			count++
		}
	}
	return count, nil
}

// inlineTxManager runs the callback directly.
type inlineTxManager struct{}

func (inlineTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
