package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/StricklySoft/admingate/pkg/auth"
	"github.com/StricklySoft/admingate/pkg/clients/postgres"
	"github.com/StricklySoft/admingate/pkg/clients/redis"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// envPrefix namespaces every variable, e.g. ADMINGATE_AUTH_ISSUER_URL.
const envPrefix = "ADMINGATE"

// ServerConfig is the full process configuration.
type ServerConfig struct {
	Addr              string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level" json:"log_level"`

	Auth     auth.Config     `env:"AUTH" yaml:"auth" json:"auth"`
	Postgres postgres.Config `env:"POSTGRES" yaml:"postgres" json:"postgres"`

	// Redis is optional. When set, the last good key set is shared
	// between replicas and served while the issuer is unreachable.
	Redis           redis.Config  `env:"REDIS" yaml:"redis" json:"redis"`
	SharedKeySetTTL time.Duration `env:"SHARED_JWKS_TTL" envDefault:"24h" yaml:"shared_jwks_ttl" json:"shared_jwks_ttl"`
}

// Validate checks the server settings, then the auth, database and cache
// sections.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return sserr.New(sserr.CodeValidationRequired, "admingate: listen address is required")
	}
	if c.ShutdownTimeout <= 0 || c.ReadHeaderTimeout <= 0 {
		return sserr.Validation("admingate: timeouts must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	return c.Redis.Validate()
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, sserr.Wrapf(err, sserr.CodeValidation, "admingate: unknown log level %q", s)
	}
	return level, nil
}
