package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/tokenvault/internal/token/domain"
	tokenRepository "github.com/allisson/tokenvault/internal/token/repository"
	tokenMySQL "github.com/allisson/tokenvault/internal/token/repository/mysql"
	tokenService "github.com/allisson/tokenvault/internal/token/service"
	tokenUsecase "github.com/allisson/tokenvault/internal/token/usecase"
)

// revocationCachePrefix namespaces the revocation cache keys in Redis.
const revocationCachePrefix = "tokenvault:"

// PolicySet returns the per token type policies from configuration.
func (c *Container) PolicySet() domain.PolicySet {
	return domain.PolicySet{
		JWT:     domain.Policy{MaxAge: c.config.JWT.MaxAge, RotationInterval: c.config.JWT.RotationInterval},
		OAuth:   domain.Policy{MaxAge: c.config.OAuth.MaxAge, RotationInterval: c.config.OAuth.RotationInterval},
		Session: domain.Policy{MaxAge: c.config.Session.MaxAge, RotationInterval: c.config.Session.RotationInterval},
		Refresh: domain.Policy{MaxAge: c.config.Refresh.MaxAge, RotationInterval: c.config.Refresh.RotationInterval},
	}
}

// Codec returns the envelope codec.
func (c *Container) Codec() (*tokenService.Codec, error) {
	var err error
	c.codecInit.Do(func() {
		c.codec, err = c.initCodec()
		if err != nil {
			c.initErrors["codec"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["codec"]; exists {
		return nil, storedErr
	}
	return c.codec, nil
}

// BindingService returns the client binding service.
func (c *Container) BindingService() *tokenService.BindingService {
	c.bindingServiceInit.Do(func() {
		c.bindingService = tokenService.NewBindingService(c.config.BindingWindow)
	})
	return c.bindingService
}

// TokenRepository returns the token record repository for the configured driver.
func (c *Container) TokenRepository() (tokenUsecase.TokenRepository, error) {
	var err error
	c.tokenRepoInit.Do(func() {
		c.tokenRepo, err = c.initTokenRepository()
		if err != nil {
			c.initErrors["tokenRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenRepo"]; exists {
		return nil, storedErr
	}
	return c.tokenRepo, nil
}

// RevocationCache returns the Redis revocation cache, or nil when REDIS_URL is empty.
func (c *Container) RevocationCache() (tokenUsecase.RevocationCache, error) {
	var err error
	c.revocationCacheInit.Do(func() {
		c.revocationCache, err = c.initRevocationCache()
		if err != nil {
			c.initErrors["revocationCache"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["revocationCache"]; exists {
		return nil, storedErr
	}
	return c.revocationCache, nil
}

// LifecycleUseCase returns the lifecycle use case.
func (c *Container) LifecycleUseCase() (tokenUsecase.LifecycleUseCase, error) {
	var err error
	c.lifecycleUseCaseInit.Do(func() {
		c.lifecycleUseCase, err = c.initLifecycleUseCase()
		if err != nil {
			c.initErrors["lifecycleUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["lifecycleUseCase"]; exists {
		return nil, storedErr
	}
	return c.lifecycleUseCase, nil
}

// TokenUseCase returns the token gateway use case.
func (c *Container) TokenUseCase() (tokenUsecase.TokenUseCase, error) {
	var err error
	c.tokenUseCaseInit.Do(func() {
		c.tokenUseCase, err = c.initTokenUseCase()
		if err != nil {
			c.initErrors["tokenUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenUseCase"]; exists {
		return nil, storedErr
	}
	return c.tokenUseCase, nil
}

// CleanupWorker returns the background cleanup worker.
func (c *Container) CleanupWorker() (*tokenUsecase.CleanupWorker, error) {
	var err error
	c.cleanupWorkerInit.Do(func() {
		var tokens tokenUsecase.TokenUseCase
		tokens, err = c.TokenUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get token use case for cleanup worker: %w", err)
			c.initErrors["cleanupWorker"] = err
			return
		}
		c.cleanupWorker = tokenUsecase.NewCleanupWorker(c.config.CleanupInterval, tokens, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["cleanupWorker"]; exists {
		return nil, storedErr
	}
	return c.cleanupWorker, nil
}

func (c *Container) initCodec() (*tokenService.Codec, error) {
	keyStore, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	kdf, err := c.KeyDerivation()
	if err != nil {
		return nil, fmt.Errorf("failed to get key derivation for codec: %w", err)
	}
	policies := c.PolicySet()
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	return tokenService.NewCodec(keyStore, kdf, c.AEADManager(), policies), nil
}

func (c *Container) initRedisClient() (*redis.Client, error) {
	if c.config.RedisURL == "" {
		return nil, nil
	}
	client, err := tokenRepository.NewRedisClient(context.Background(), c.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (c *Container) initTokenRepository() (tokenUsecase.TokenRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for token repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return tokenMySQL.NewMySQLTokenRepository(db), nil
	case "postgres":
		return tokenRepository.NewPostgreSQLTokenRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initRevocationCache() (tokenUsecase.RevocationCache, error) {
	client, err := c.RedisClient()
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	return tokenRepository.NewRedisRevocationCache(client, revocationCachePrefix, c.config.RevocationCacheTTL), nil
}

func (c *Container) initLifecycleUseCase() (tokenUsecase.LifecycleUseCase, error) {
	codec, err := c.Codec()
	if err != nil {
		return nil, fmt.Errorf("failed to get codec for lifecycle use case: %w", err)
	}
	keyStore, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	publisher, err := c.AuditPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit publisher for lifecycle use case: %w", err)
	}

	baseUseCase := tokenUsecase.NewLifecycleUseCase(codec, keyStore, c.PolicySet(), publisher, c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for lifecycle use case: %w", err)
		}
		return tokenUsecase.NewLifecycleUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}
	return baseUseCase, nil
}

func (c *Container) initTokenUseCase() (tokenUsecase.TokenUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for token use case: %w", err)
	}
	lifecycle, err := c.LifecycleUseCase()
	if err != nil {
		return nil, err
	}
	keyStore, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	tokenRepo, err := c.TokenRepository()
	if err != nil {
		return nil, err
	}
	cache, err := c.RevocationCache()
	if err != nil {
		return nil, err
	}
	publisher, err := c.AuditPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit publisher for token use case: %w", err)
	}

	baseUseCase := tokenUsecase.NewTokenUseCase(
		tokenUsecase.TokenUseCaseConfig{
			RevokedRetention: c.config.RevokedRetention,
			ReEncryptRate:    c.config.ReEncryptRatePerSec,
			ReEncryptBurst:   c.config.ReEncryptBurst,
		},
		txManager,
		lifecycle,
		keyStore,
		c.PolicySet(),
		tokenRepo,
		cache,
		publisher,
		c.Logger(),
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for token use case: %w", err)
		}
		return tokenUsecase.NewTokenUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}
	return baseUseCase, nil
}
