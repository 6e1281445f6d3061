package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	"github.com/StricklySoft/admingate/pkg/auth"
	"github.com/StricklySoft/admingate/pkg/clients/postgres"
	"github.com/StricklySoft/admingate/pkg/config"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

func validConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		LogLevel:          "info",
		Auth:              auth.Config{IssuerURL: "https://project.example.co"},
		Postgres:          postgres.Config{URI: "postgres://admin@db/app"},
	}
}

func TestServerConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("ADMINGATE_AUTH_ISSUER_URL", "https://project.example.co")
	t.Setenv("ADMINGATE_AUTH_ADMIN_EMAILS", "Owner@Example.com, ops@example.com")
	t.Setenv("ADMINGATE_POSTGRES_URI", "postgres://admin@db/app")
	t.Setenv("ADMINGATE_LOG_LEVEL", "debug")

	var cfg ServerConfig
	require.NoError(t, config.New().WithEnvPrefix(envPrefix).Load(&cfg))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://project.example.co/auth/v1", cfg.Auth.Issuer())
	assert.Equal(t, []string{"Owner@Example.com", "ops@example.com"}, cfg.Auth.AdminEmails)
	assert.Equal(t, "postgres://admin@db/app", cfg.Postgres.URI)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.SharedKeySetTTL)
}

func TestServerConfig_LoadRedisFromEnv(t *testing.T) {
	t.Setenv("ADMINGATE_AUTH_ISSUER_URL", "https://project.example.co")
	t.Setenv("ADMINGATE_POSTGRES_URI", "postgres://admin@db/app")
	t.Setenv("ADMINGATE_REDIS_HOST", "cache")
	t.Setenv("ADMINGATE_REDIS_PASSWORD", "s3cret")
	t.Setenv("ADMINGATE_SHARED_JWKS_TTL", "1h")

	var cfg ServerConfig
	require.NoError(t, config.New().WithEnvPrefix(envPrefix).Load(&cfg))

	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, "s3cret", cfg.Redis.Password.Value())
	assert.Equal(t, 6379, cfg.Redis.Port, "defaults applied by Validate")
	assert.Equal(t, time.Hour, cfg.SharedKeySetTTL)
}

func TestServerConfig_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admingate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
auth:
  issuer_url: https://project.example.co
  admin_emails: [owner@example.com]
postgres:
  uri: postgres://admin@db/app
`), 0o600))
	t.Setenv("ADMINGATE_ADDR", ":9191")

	var cfg ServerConfig
	require.NoError(t, config.New().WithEnvPrefix(envPrefix).WithFile(path).Load(&cfg))

	assert.Equal(t, ":9191", cfg.Addr, "env overrides the file")
	assert.Equal(t, []string{"owner@example.com"}, cfg.Auth.AdminEmails)
}

func TestServerConfig_MissingIssuer(t *testing.T) {
	t.Setenv("ADMINGATE_POSTGRES_URI", "postgres://admin@db/app")

	var cfg ServerConfig
	err := config.New().WithEnvPrefix("ADMINGATE").Load(&cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), "Auth.IssuerURL")
}

func TestServerConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*ServerConfig)
		code   sserr.Code
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"empty addr", func(c *ServerConfig) { c.Addr = " " }, sserr.CodeValidationRequired},
		{"zero shutdown", func(c *ServerConfig) { c.ShutdownTimeout = 0 }, sserr.CodeValidation},
		{"bad level", func(c *ServerConfig) { c.LogLevel = "loud" }, sserr.CodeValidation},
		{"bad issuer", func(c *ServerConfig) { c.Auth.IssuerURL = "ftp://x" }, sserr.CodeInternalConfiguration},
		{"bad database", func(c *ServerConfig) { c.Postgres.URI = "mysql://x" }, sserr.CodeValidation},
		{"cache enabled", func(c *ServerConfig) { c.Redis.URI = "redis://cache:6379/0" }, ""},
		{"bad cache", func(c *ServerConfig) { c.Redis.URI = "memcached://cache" }, sserr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			testutil.RequireErrorCode(t, err, tt.code)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "admingate", line["service"])
	assert.True(t, newLogger(&buf, "nonsense").Enabled(context.Background(), slog.LevelInfo))
}

func TestRun_InvalidAuthConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth = auth.Config{}
	err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestRun_UnreachableCache(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Redis.URI = "redis://127.0.0.1:1/0"
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	cfg.Redis.MaxRetries = -1
	err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}
