package app

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tokengate/config"
	"github.com/upb/tokengate/repositories/postgres"
	"github.com/upb/tokengate/services/audit"
	"github.com/upb/tokengate/services/ratelimit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization against a live database", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Persons)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.PersonService)
		assert.NotNil(t, deps.Provider)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestNewDependenciesFromFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("wires services and memory limiter", func(t *testing.T) {
		factory, mock := mockFactory(t)
		cfg := testConfig(t)

		deps, err := NewDependenciesFromFactory(ctx, cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.NotNil(t, deps.PersonService)
		assert.Equal(t, time.Hour, deps.Provider.Expiration())
		assert.IsType(t, &ratelimit.MemoryLimiter{}, deps.LoginLimiter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rate limiting disabled", func(t *testing.T) {
		factory, _ := mockFactory(t)
		cfg := testConfig(t)
		cfg.RateLimit.Enabled = false

		deps, err := NewDependenciesFromFactory(ctx, cfg, factory, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, deps.LoginLimiter)
	})

	t.Run("seeds admin in development", func(t *testing.T) {
		factory, mock := mockFactory(t)
		cfg := testConfig(t)
		cfg.Environment = "development"
		cfg.Seed = config.SeedConfig{
			AdminEnabled:  true,
			AdminUsername: "Admin",
			AdminEmail:    "admin@tokengate.local",
			AdminPassword: "password",
			AdminToken:    "62b3e09e-c529-40c6-85c6-1afc53e17408",
		}

		mock.ExpectQuery("SELECT (.+) FROM persons WHERE username = \\$1").
			WithArgs("Admin").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO persons").WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := NewDependenciesFromFactory(ctx, cfg, factory, zap.NewNop())
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips seeding outside development", func(t *testing.T) {
		factory, mock := mockFactory(t)
		cfg := testConfig(t)
		cfg.Environment = "staging"
		cfg.Seed.AdminEnabled = true
		cfg.Seed.AdminToken = "62b3e09e-c529-40c6-85c6-1afc53e17408"

		_, err := NewDependenciesFromFactory(ctx, cfg, factory, zap.NewNop())
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects malformed seed token", func(t *testing.T) {
		factory, _ := mockFactory(t)
		cfg := testConfig(t)
		cfg.Environment = "dev"
		cfg.Seed = config.SeedConfig{
			AdminEnabled:  true,
			AdminUsername: "Admin",
			AdminPassword: "password",
			AdminToken:    "not-a-uuid",
		}

		_, err := NewDependenciesFromFactory(ctx, cfg, factory, zap.NewNop())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "SEED_ADMIN_TOKEN")
	})

	t.Run("redis backend without server", func(t *testing.T) {
		factory, _ := mockFactory(t)
		cfg := testConfig(t)
		cfg.RateLimit.Backend = "redis"
		cfg.Redis.Addr = "127.0.0.1:1"

		_, err := NewDependenciesFromFactory(ctx, cfg, factory, zap.NewNop())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis ping failed")
	})
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	factory, mock := mockFactory(t)
	mock.ExpectClose()

	deps, err := NewDependenciesFromFactory(ctx, testConfig(t), factory, zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, deps.Close(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDependencies_AuditTrail(t *testing.T) {
	ctx := context.Background()
	factory, mock := mockFactory(t)
	cfg := testConfig(t)
	cfg.Audit = config.AuditConfig{
		Enabled:     true,
		BufferSize:  10,
		WorkerCount: 1,
		StopTimeout: time.Second,
	}

	deps, err := NewDependenciesFromFactory(ctx, cfg, factory, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, deps.Audit)
	assert.True(t, deps.Audit.GetStats().Started)

	actor, id := uuid.New(), uuid.New()
	mock.ExpectExec("DELETE FROM persons WHERE id = \\$1").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	require.NoError(t, deps.PersonService.Delete(ctx, actor, id))

	// Close drains the audit queue before closing the database
	require.NoError(t, deps.Close(ctx))
	assert.Nil(t, deps.Audit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDependencies_AbandonLogsReleaseFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testConfig(t)
	cfg.Audit.StopTimeout = time.Second

	// both resources already released, so releasing them again fails
	stopped := audit.NewAuditService(nil, zap.NewNop(), audit.Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, stopped.Start())
	require.NoError(t, stopped.Stop(time.Second))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	require.NoError(t, client.Close())

	deps := &Dependencies{Config: cfg, Logger: zap.New(core), Audit: stopped, redisClient: client}
	deps.abandon()

	assert.Nil(t, deps.Audit)
	assert.Nil(t, deps.RedisClient())

	auditLogs := logs.FilterMessage("failed to stop audit service after init failure").All()
	require.Len(t, auditLogs, 1)
	assert.Equal(t, audit.ErrNotRunning.Error(), auditLogs[0].ContextMap()["error"])
	assert.Equal(t, 1, logs.FilterMessage("failed to close redis after init failure").Len())
}

func TestNewDependenciesFromFactory_SeedFailureStopsAudit(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	factory, _ := mockFactory(t)
	cfg := testConfig(t)
	cfg.Environment = "development"
	cfg.Audit = config.AuditConfig{Enabled: true, BufferSize: 10, WorkerCount: 1, StopTimeout: time.Second}
	cfg.Seed = config.SeedConfig{
		AdminEnabled:  true,
		AdminUsername: "Admin",
		AdminPassword: "password",
		AdminToken:    "not-a-uuid",
	}

	deps, err := NewDependenciesFromFactory(context.Background(), cfg, factory, zap.New(core))
	require.Error(t, err)
	assert.Nil(t, deps)
	assert.Equal(t, 1, logs.FilterMessage("audit service stopped").Len())
	assert.Zero(t, logs.FilterMessage("failed to stop audit service after init failure").Len())
}

// Test helpers

func mockFactory(t *testing.T) (*postgres.RepositoryFactory, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(sqlDB, zap.NewNop()), zap.NewNop()), mock
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "tokengate"),
			Password:        getEnvOrDefault("DB_PASSWORD", "tokengate"),
			Database:        getEnvOrDefault("DB_NAME", "tokengate_test"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			InitSchema:      true,
		},
		Token: config.TokenConfig{
			ExpirationDuration: time.Hour,
			BcryptCost:         bcrypt.MinCost,
		},
		Routes: config.RoutesConfig{
			APIBase:   "/api",
			AdminBase: "/admin",
			ErrorBase: "/error",
		},
		RateLimit: config.RateLimitConfig{
			Enabled:       true,
			Backend:       "memory",
			LoginAttempts: 5,
			LoginWindow:   time.Minute,
			MaxKeys:       100,
		},
		Redis: config.RedisConfig{
			KeyPrefix: "tokengate:test:",
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	db, err := postgres.NewDB(context.Background(), cfg.Database, zap.NewNop())
	if err != nil {
		return false
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return db.PingContext(ctx) == nil
}
