// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/tokenvault/internal/config"
	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
	"github.com/allisson/tokenvault/internal/database"
	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/http"
	"github.com/allisson/tokenvault/internal/metrics"
	outboxRepository "github.com/allisson/tokenvault/internal/outbox/repository"
	outboxUsecase "github.com/allisson/tokenvault/internal/outbox/usecase"
	tokenService "github.com/allisson/tokenvault/internal/token/service"
	tokenUsecase "github.com/allisson/tokenvault/internal/token/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	redisClient     *redis.Client
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Managers
	txManager database.TxManager

	// Crypto
	kmsService    cryptoService.KMSService
	aeadManager   cryptoService.AEADManager
	keyDerivation cryptoService.KeyDerivation
	keyStore      *cryptoDomain.KeyStore

	// Token
	codec            *tokenService.Codec
	bindingService   *tokenService.BindingService
	tokenRepo        tokenUsecase.TokenRepository
	revocationCache  tokenUsecase.RevocationCache
	lifecycleUseCase tokenUsecase.LifecycleUseCase
	tokenUseCase     tokenUsecase.TokenUseCase
	cleanupWorker    *tokenUsecase.CleanupWorker

	// Outbox
	outboxRepo     outboxUsecase.OutboxEventRepository
	auditPublisher *outboxUsecase.Publisher
	outboxUseCase  outboxUsecase.UseCase

	// Servers
	adminServer *http.Server

	// Initialization flags and mutex for thread-safety
	mu                   sync.Mutex
	loggerInit           sync.Once
	dbInit               sync.Once
	redisClientInit      sync.Once
	metricsProviderInit  sync.Once
	businessMetricsInit  sync.Once
	txManagerInit        sync.Once
	kmsServiceInit       sync.Once
	aeadManagerInit      sync.Once
	keyDerivationInit    sync.Once
	keyStoreInit         sync.Once
	codecInit            sync.Once
	bindingServiceInit   sync.Once
	tokenRepoInit        sync.Once
	revocationCacheInit  sync.Once
	lifecycleUseCaseInit sync.Once
	tokenUseCaseInit     sync.Once
	cleanupWorkerInit    sync.Once
	outboxRepoInit       sync.Once
	auditPublisherInit   sync.Once
	outboxUseCaseInit    sync.Once
	adminServerInit      sync.Once
	initErrors           map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// RedisClient returns the Redis client, or nil when REDIS_URL is not configured.
func (c *Container) RedisClient() (*redis.Client, error) {
	var err error
	c.redisClientInit.Do(func() {
		c.redisClient, err = c.initRedisClient()
		if err != nil {
			c.initErrors["redisClient"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["redisClient"]; exists {
		return nil, storedErr
	}
	return c.redisClient, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op recorder
// when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// OutboxRepository returns the outbox event repository instance.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	var err error
	c.outboxRepoInit.Do(func() {
		c.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// AuditPublisher returns the publisher that writes audit events to the outbox.
func (c *Container) AuditPublisher() (*outboxUsecase.Publisher, error) {
	var err error
	c.auditPublisherInit.Do(func() {
		c.auditPublisher, err = c.initAuditPublisher()
		if err != nil {
			c.initErrors["auditPublisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditPublisher"]; exists {
		return nil, storedErr
	}
	return c.auditPublisher, nil
}

// OutboxUseCase returns the outbox use case instance.
func (c *Container) OutboxUseCase() (outboxUsecase.UseCase, error) {
	var err error
	c.outboxUseCaseInit.Do(func() {
		c.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.outboxUseCase, nil
}

// AdminServer returns the admin HTTP server instance.
func (c *Container) AdminServer() (*http.Server, error) {
	var err error
	c.adminServerInit.Do(func() {
		c.adminServer, err = c.initAdminServer()
		if err != nil {
			c.initErrors["adminServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["adminServer"]; exists {
		return nil, storedErr
	}
	return c.adminServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.adminServer != nil {
		if err := c.adminServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	// Zero master keys last so in-flight requests drain first.
	if c.keyStore != nil {
		c.keyStore.Close()
	}

	return apperrors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initMetricsProvider creates the OpenTelemetry provider backed by Prometheus.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initOutboxRepository creates the outbox event repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxEventRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initAuditPublisher creates the outbox backed audit publisher.
func (c *Container) initAuditPublisher() (*outboxUsecase.Publisher, error) {
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for audit publisher: %w", err)
	}
	return outboxUsecase.NewPublisher(outboxRepo), nil
}

// initOutboxUseCase creates the outbox use case with all its dependencies.
func (c *Container) initOutboxUseCase() (outboxUsecase.UseCase, error) {
	logger := c.Logger()

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for outbox use case: %w", err)
	}

	useCaseConfig := outboxUsecase.Config{
		Interval:   c.config.OutboxInterval,
		BatchSize:  c.config.OutboxBatchSize,
		MaxRetries: c.config.OutboxMaxRetries,
		Retention:  c.config.OutboxRetention,
	}

	eventProcessor := outboxUsecase.NewAuditEventProcessor(logger, businessMetrics)
	return outboxUsecase.NewOutboxUseCase(useCaseConfig, txManager, outboxRepo, eventProcessor, logger), nil
}

// initAdminServer creates the admin server with database and Redis readiness checks.
func (c *Container) initAdminServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for admin server: %w", err)
	}
	redisClient, err := c.RedisClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis client for admin server: %w", err)
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for admin server: %w", err)
	}

	checks := map[string]http.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	server := http.NewServer(c.config.MetricsHost, c.config.MetricsPort, checks, c.Logger())
	server.SetupRouter(provider, c.config.MetricsNamespace)
	return server, nil
}
