package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/tokenvault/internal/token/domain"
)

// DefaultRevocationCacheTTL bounds how long a cached revocation survives. It only needs to
// outlive the longest token max age; the database stays authoritative after expiry.
const DefaultRevocationCacheTTL = 30 * 24 * time.Hour

// RedisRevocationCache stores revoked token ids as individual keys with a TTL.
type RedisRevocationCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisRevocationCache creates a revocation cache. A non-positive ttl selects
// DefaultRevocationCacheTTL.
func NewRedisRevocationCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisRevocationCache {
	if ttl <= 0 {
		ttl = DefaultRevocationCacheTTL
	}
	return &RedisRevocationCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRevocationCache) key(tokenID string) string {
	return r.prefix + "revoked:" + tokenID
}

// Add marks every id as revoked in a single pipeline.
func (r *RedisRevocationCache) Add(ctx context.Context, tokenIDs ...string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tokenID := range tokenIDs {
			pipe.Set(ctx, r.key(tokenID), 1, r.ttl)
		}
		return nil
	})
	if err != nil {
		return storageError("failed to cache revoked tokens", err)
	}
	return nil
}

// Contains reports whether tokenID is cached as revoked.
func (r *RedisRevocationCache) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, storageError("failed to read revocation cache", err)
	}
	return n > 0, nil
}

// NewRedisClient parses a redis:// URL and verifies the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", domain.ErrStorage, err)
	}
	return client, nil
}
