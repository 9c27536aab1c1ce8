package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "tokengate", cfg.Database.User)
				assert.Equal(t, time.Hour, cfg.Token.ExpirationDuration)
				assert.Equal(t, "/api", cfg.Routes.APIBase)
				assert.Equal(t, "/admin", cfg.Routes.AdminBase)
				assert.Equal(t, "/error", cfg.Routes.ErrorBase)
				assert.Empty(t, cfg.Routes.PublicPaths)
				assert.Equal(t, "memory", cfg.RateLimit.Backend)
				assert.Equal(t, 10, cfg.RateLimit.LoginAttempts)
				assert.False(t, cfg.Seed.AdminEnabled)
				assert.Equal(t, "Admin", cfg.Seed.AdminUsername)
				assert.True(t, cfg.Audit.Enabled)
				assert.Equal(t, 2, cfg.Audit.WorkerCount)
			},
		},
		{
			name: "custom token lifetime and bases",
			envVars: map[string]string{
				"TOKEN_EXPIRATION_DURATION": "15m",
				"API_BASE":                  "/rest",
				"ADMIN_BASE":                "/console",
				"PUBLIC_PATHS":              "/rest/version, /rest/ping,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Minute, cfg.Token.ExpirationDuration)
				assert.Equal(t, "/rest", cfg.Routes.APIBase)
				assert.Equal(t, "/console", cfg.Routes.AdminBase)
				assert.Equal(t, []string{"/rest/version", "/rest/ping"}, cfg.Routes.PublicPaths)
			},
		},
		{
			name: "database url takes precedence",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://u:p@db.internal:6543/persons?sslmode=require",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://u:p@db.internal:6543/persons?sslmode=require", cfg.Database.DSN())
				assert.Equal(t, "host=db.internal port=6543 database=persons", cfg.Database.LogString())
			},
		},
		{
			name: "redis backend with address",
			envVars: map[string]string{
				"LOGIN_RATE_LIMIT_BACKEND": "redis",
				"REDIS_ADDR":               "localhost:6379",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis", cfg.RateLimit.Backend)
				assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
				assert.Equal(t, 0, cfg.Redis.DB)
				assert.Equal(t, "tokengate:ratelimit:", cfg.Redis.KeyPrefix)
			},
		},
		{
			name: "redis database and prefix",
			envVars: map[string]string{
				"REDIS_DB":         "3",
				"REDIS_KEY_PREFIX": "gate:",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3, cfg.Redis.DB)
				assert.Equal(t, "gate:", cfg.Redis.KeyPrefix)
			},
		},
		{
			name: "malformed redis database",
			envVars: map[string]string{
				"REDIS_DB": "three",
			},
			wantErr: true,
		},
		{
			name: "redis backend without address",
			envVars: map[string]string{
				"LOGIN_RATE_LIMIT_BACKEND": "redis",
			},
			wantErr: true,
		},
		{
			name: "seeding in production is rejected",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"SEED_ADMIN":  "true",
			},
			wantErr: true,
		},
		{
			name: "audit without workers is rejected",
			envVars: map[string]string{
				"AUDIT_WORKERS": "0",
			},
			wantErr: true,
		},
		{
			name: "relative api base is rejected",
			envVars: map[string]string{
				"API_BASE": "api",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		Token:         TokenConfig{ExpirationDuration: time.Hour},
		Routes:        RoutesConfig{APIBase: "/api", AdminBase: "/admin", ErrorBase: "/error"},
		RateLimit:     RateLimitConfig{Enabled: true, Backend: "memory"},
		Observability: ObservabilityConfig{LogLevel: "info"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid development config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "zero token lifetime",
			mutate:  func(c *Config) { c.Token.ExpirationDuration = 0 },
			wantErr: true,
			errMsg:  "token expiration duration",
		},
		{
			name:    "root api base",
			mutate:  func(c *Config) { c.Routes.APIBase = "/" },
			wantErr: true,
			errMsg:  "API_BASE",
		},
		{
			name:    "identical bases",
			mutate:  func(c *Config) { c.Routes.AdminBase = "/api" },
			wantErr: true,
			errMsg:  "must differ",
		},
		{
			name:    "unknown rate limit backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "memcached" },
			wantErr: true,
			errMsg:  "unknown rate limit backend",
		},
		{
			name: "disabled rate limit ignores backend",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.Backend = "memcached"
			},
		},
		{
			name: "seed without password",
			mutate: func(c *Config) {
				c.Seed = SeedConfig{AdminEnabled: true, AdminUsername: "Admin"}
			},
			wantErr: true,
			errMsg:  "seed admin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	assert.True(t, (&Config{Environment: "dev"}).IsDevelopment())
	assert.True(t, (&Config{Environment: "development"}).IsDevelopment())
	assert.False(t, (&Config{Environment: "prod"}).IsDevelopment())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}

	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "password")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvAsDuration("TEST_DURATION", time.Minute))
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 1))

	t.Setenv("TEST_INT", "many")
	assert.Equal(t, 1, getEnvAsInt("TEST_INT", 1))
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	assert.True(t, getEnvAsBool("TEST_BOOL", false))

	t.Setenv("TEST_BOOL", "maybe")
	assert.False(t, getEnvAsBool("TEST_BOOL", false))
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a ,b,, c ")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsSlice("TEST_SLICE", nil))

	t.Setenv("TEST_SLICE", "")
	assert.Equal(t, []string{"x"}, getEnvAsSlice("TEST_SLICE", []string{"x"}))
}
