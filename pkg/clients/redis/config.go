package redis

import (
	"fmt"
	"net/url"
	"time"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

const maxStatementTruncateLen = 100

const (
	DefaultPort         = 6379
	DefaultPoolSize     = 10
	DefaultMinIdleConns = 1
	DefaultMaxRetries   = 3
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultHealthTimeout bounds Health when the caller's context has no
	// deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string that never prints its value.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }
func (s Secret) Value() string    { return string(s) }

// MarshalText keeps the value out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config describes how to reach Redis. Redis is optional: a Config with
// neither URI nor Host is disabled. Env tags are relative; the binary nests
// Config under REDIS, e.g. ADMINGATE_REDIS_URI.
type Config struct {
	// URI wins over the structured fields, e.g. "rediss://:pw@host:6379/0".
	URI string `env:"URI" yaml:"uri" json:"uri,omitempty"`

	Host     string `env:"HOST" yaml:"host" json:"host,omitempty"`
	Port     int    `env:"PORT" yaml:"port" json:"port,omitempty"`
	DB       int    `env:"DB" yaml:"db" json:"db"`
	Password Secret `env:"PASSWORD" yaml:"password" json:"-"`

	PoolSize     int           `env:"POOL_SIZE" yaml:"pool_size" json:"pool_size,omitempty"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" yaml:"min_idle_conns" json:"min_idle_conns,omitempty"`
	MaxRetries   int           `env:"MAX_RETRIES" yaml:"max_retries" json:"max_retries,omitempty"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" yaml:"dial_timeout" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" yaml:"read_timeout" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" yaml:"write_timeout" json:"write_timeout,omitempty"`
	TLSEnabled   bool          `env:"TLS_ENABLED" yaml:"tls_enabled" json:"tls_enabled,omitempty"`
}

// Enabled reports whether a server is configured.
func (c *Config) Enabled() bool {
	return c.URI != "" || c.Host != ""
}

// Validate applies defaults and checks the configuration. A disabled
// Config is valid. Failures carry [sserr.CodeValidation].
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "redis: URI is invalid")
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return sserr.Validationf(
				"redis: URI scheme must be redis or rediss, got %q", u.Scheme)
		}
		return nil
	}

	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Validationf("redis: port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PoolSize < 1 || c.MinIdleConns < 0 || c.PoolSize < c.MinIdleConns {
		return sserr.Validationf(
			"redis: pool_size (%d) must be >= 1 and >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return sserr.Validation("redis: timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// truncateStatement is rune-aware so multi-byte keys are not split.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
