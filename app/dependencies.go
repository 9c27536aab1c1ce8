package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/upb/tokengate/config"
	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/repositories"
	"github.com/upb/tokengate/repositories/postgres"
	"github.com/upb/tokengate/services/audit"
	"github.com/upb/tokengate/services/person"
	"github.com/upb/tokengate/services/ratelimit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Persons   repositories.PersonRepository
	AuditLogs repositories.AuditRepository
	TxManager repositories.TransactionManager

	// Services
	PersonService *person.PersonService
	// Audit is nil when the audit trail is disabled
	Audit         *audit.AuditService

	// Auth
	Provider *auth.Provider

	// LoginLimiter is nil when login throttling is disabled
	LoginLimiter ratelimit.Limiter
	redisClient  *redis.Client
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesFromFactory(ctx, cfg, factory, logger)
	if err != nil {
		if cerr := factory.Close(); cerr != nil {
			logger.Error("failed to close database after init failure", zap.Error(cerr))
		}
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromFactory wires the dependencies on top of an existing repository factory
func NewDependenciesFromFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	deps.initRepositories()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initRateLimiter(ctx); err != nil {
		deps.abandon()
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	if err := deps.seedAdmin(ctx); err != nil {
		deps.abandon()
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Persons = repos.Persons
	d.AuditLogs = repos.Audit
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	personCfg := person.Config{
		BcryptCost:      d.Config.Token.BcryptCost,
		TokenExpiration: d.Config.Token.ExpirationDuration,
	}

	if d.Config.Audit.Enabled {
		d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger.Named("audit"), audit.Config{
			BufferSize:  d.Config.Audit.BufferSize,
			WorkerCount: d.Config.Audit.WorkerCount,
		})
		if err := d.Audit.Start(); err != nil {
			return err
		}
		personCfg.Auditor = d.Audit
	}

	svc, err := person.NewPersonService(d.Persons, d.TxManager, personCfg, d.Logger.Named("person"))
	if err != nil {
		d.abandon()
		return err
	}
	d.PersonService = svc

	d.Provider = auth.NewProvider(
		person.NewPrincipalStore(d.Persons),
		d.Config.Token.ExpirationDuration,
		d.Logger.Named("auth"),
	)

	d.Logger.Info("services initialized",
		zap.Duration("token_expiration", d.Provider.Expiration()))
	return nil
}

func (d *Dependencies) initRateLimiter(ctx context.Context) error {
	cfg := d.Config.RateLimit
	if !cfg.Enabled {
		d.Logger.Warn("login rate limiting disabled")
		return nil
	}

	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     d.Config.Redis.Addr,
			Password: d.Config.Redis.Password,
			DB:       d.Config.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			d.closeClient(client)
			return fmt.Errorf("redis ping failed: %w", err)
		}

		limiter, err := ratelimit.NewRedisLimiter(client, d.Config.Redis.KeyPrefix, nil)
		if err != nil {
			d.closeClient(client)
			return err
		}
		d.redisClient = client
		d.LoginLimiter = limiter
	default:
		d.LoginLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxKeys: cfg.MaxKeys})
	}

	d.Logger.Info("login rate limiter initialized",
		zap.String("backend", cfg.Backend),
		zap.Int("attempts", cfg.LoginAttempts),
		zap.Duration("window", cfg.LoginWindow))
	return nil
}

func (d *Dependencies) seedAdmin(ctx context.Context) error {
	seed := d.Config.Seed
	if !seed.AdminEnabled {
		return nil
	}
	if !d.Config.IsDevelopment() {
		d.Logger.Warn("admin seeding requested outside development, skipping",
			zap.String("environment", d.Config.Environment))
		return nil
	}

	token, err := uuid.Parse(seed.AdminToken)
	if err != nil {
		return fmt.Errorf("invalid SEED_ADMIN_TOKEN: %w", err)
	}

	return d.PersonService.SeedAdmin(ctx, person.SeedInput{
		Username: seed.AdminUsername,
		Email:    seed.AdminEmail,
		Password: seed.AdminPassword,
		Token:    token,
	})
}

// RedisClient returns the client behind the login limiter, or nil when
// throttling runs in memory or is disabled
func (d *Dependencies) RedisClient() *redis.Client {
	return d.redisClient
}

func (d *Dependencies) stopAudit() error {
	if d.Audit == nil {
		return nil
	}
	timeout := d.Config.Audit.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	err := d.Audit.Stop(timeout)
	d.Audit = nil
	return err
}

func (d *Dependencies) closeRedis() error {
	if d.redisClient == nil {
		return nil
	}
	err := d.redisClient.Close()
	d.redisClient = nil
	return err
}

// abandon releases what a failed initialization already started.
// Errors are logged since the init error is the one returned.
func (d *Dependencies) abandon() {
	if err := d.stopAudit(); err != nil {
		d.Logger.Error("failed to stop audit service after init failure", zap.Error(err))
	}
	if err := d.closeRedis(); err != nil {
		d.Logger.Error("failed to close redis after init failure", zap.Error(err))
	}
}

func (d *Dependencies) closeClient(client *redis.Client) {
	if err := client.Close(); err != nil {
		d.Logger.Warn("failed to close redis client", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// drain pending audit events before the database goes away
	if err := d.stopAudit(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
	}

	if err := d.closeRedis(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
