package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Token         TokenConfig
	Routes        RoutesConfig
	RateLimit     RateLimitConfig
	Redis         RedisConfig
	Seed          SeedConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is honoured
	TrustedProxies []string
	TLS            struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// TokenConfig holds access token settings
type TokenConfig struct {
	// ExpirationDuration is how long a token stays valid after it is issued
	ExpirationDuration time.Duration
	BcryptCost         int
}

// RoutesConfig holds the base paths used to classify routes
type RoutesConfig struct {
	APIBase   string
	AdminBase string
	ErrorBase string
	// PublicPaths are extra exact patterns that never require a credential
	PublicPaths []string
}

// RateLimitConfig holds login throttling settings
type RateLimitConfig struct {
	Enabled       bool
	Backend       string // memory or redis
	LoginAttempts int
	LoginWindow   time.Duration
	FailClosed    bool
	MaxKeys       int
}

// RedisConfig holds the Redis connection used by the redis rate limit backend.
// It is decoded from the environment with envdecode.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,default=0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX,default=tokengate:ratelimit:"`
}

// SeedConfig controls creation of a development administrator at startup
type SeedConfig struct {
	AdminEnabled  bool
	AdminUsername string
	AdminEmail    string
	AdminPassword string
	AdminToken    string
}

// AuditConfig controls the asynchronous account audit trail
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
	StopTimeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
			TrustedProxies:  getEnvAsSlice("TRUSTED_PROXIES", nil),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Token: TokenConfig{
			ExpirationDuration: getEnvAsDuration("TOKEN_EXPIRATION_DURATION", time.Hour),
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 10),
		},
		Routes: RoutesConfig{
			APIBase:     getEnv("API_BASE", "/api"),
			AdminBase:   getEnv("ADMIN_BASE", "/admin"),
			ErrorBase:   getEnv("ERROR_BASE", "/error"),
			PublicPaths: getEnvAsSlice("PUBLIC_PATHS", nil),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("LOGIN_RATE_LIMIT_ENABLED", true),
			Backend:       getEnv("LOGIN_RATE_LIMIT_BACKEND", "memory"),
			LoginAttempts: getEnvAsInt("LOGIN_RATE_LIMIT_ATTEMPTS", 10),
			LoginWindow:   getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", time.Minute),
			FailClosed:    getEnvAsBool("LOGIN_RATE_LIMIT_FAIL_CLOSED", false),
			MaxKeys:       getEnvAsInt("LOGIN_RATE_LIMIT_MAX_KEYS", 10000),
		},
		Seed: SeedConfig{
			AdminEnabled:  getEnvAsBool("SEED_ADMIN", false),
			AdminUsername: getEnv("SEED_ADMIN_USERNAME", "Admin"),
			AdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@tokengate.local"),
			AdminPassword: getEnv("SEED_ADMIN_PASSWORD", "password"),
			AdminToken:    getEnv("SEED_ADMIN_TOKEN", "62b3e09e-c529-40c6-85c6-1afc53e17408"),
		},
		Audit: AuditConfig{
			Enabled:     getEnvAsBool("AUDIT_ENABLED", true),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
			StopTimeout: getEnvAsDuration("AUDIT_STOP_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}
	cfg.Redis = redisCfg

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Token.ExpirationDuration <= 0 {
		return fmt.Errorf("token expiration duration must be positive")
	}

	for name, base := range map[string]string{"API_BASE": c.Routes.APIBase, "ADMIN_BASE": c.Routes.AdminBase, "ERROR_BASE": c.Routes.ErrorBase} {
		if !strings.HasPrefix(base, "/") || len(base) < 2 {
			return fmt.Errorf("%s must be an absolute path below the root, got %q", name, base)
		}
	}
	if c.Routes.APIBase == c.Routes.AdminBase {
		return fmt.Errorf("API_BASE and ADMIN_BASE must differ")
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("REDIS_ADDR is required for the redis rate limit backend")
			}
		default:
			return fmt.Errorf("unknown rate limit backend: %q", c.RateLimit.Backend)
		}
	}

	if c.Seed.AdminEnabled {
		if c.IsProduction() {
			return fmt.Errorf("admin seeding is not allowed in production")
		}
		if c.Seed.AdminUsername == "" || c.Seed.AdminPassword == "" {
			return fmt.Errorf("seed admin username and password are required")
		}
	}

	if c.Audit.Enabled && (c.Audit.BufferSize <= 0 || c.Audit.WorkerCount <= 0) {
		return fmt.Errorf("audit buffer size and worker count must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadRedisConfig() (RedisConfig, error) {
	var cfg RedisConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return RedisConfig{}, fmt.Errorf("invalid redis config: %w", err)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tokengate:ratelimit:"
	}
	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", true),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "tokengate")
	cfg.Password = getEnv("DB_PASSWORD", "tokengate")
	cfg.Database = getEnv("DB_NAME", "tokengate")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated value, dropping empty entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
