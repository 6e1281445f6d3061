package redis

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

func TestSecret_Redacted(t *testing.T) {
	t.Parallel()

	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())

	out, err := json.Marshal(struct{ P Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
}

func TestConfig_Enabled(t *testing.T) {
	t.Parallel()
	assert.False(t, (&Config{}).Enabled())
	assert.True(t, (&Config{Host: "redis"}).Enabled())
	assert.True(t, (&Config{URI: "redis://localhost:6379/0"}).Enabled())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"host only", Config{Host: "redis"}, false},
		{"uri", Config{URI: "redis://localhost:6379/0"}, false},
		{"tls uri", Config{URI: "rediss://:pw@cache:6380/1"}, false},
		{"bad scheme", Config{URI: "http://localhost:6379"}, true},
		{"no scheme", Config{URI: "localhost:6379"}, true},
		{"port too high", Config{Host: "redis", Port: 70000}, true},
		{"negative port", Config{Host: "redis", Port: -1}, true},
		{"negative pool", Config{Host: "redis", PoolSize: -1}, true},
		{"idle above pool", Config{Host: "redis", PoolSize: 2, MinIdleConns: 5}, true},
		{"negative timeout", Config{Host: "redis", ReadTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr {
				testutil.RequireErrorCode(t, err, sserr.CodeValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Host: "redis"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultMinIdleConns, cfg.MinIdleConns)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, "redis:6379", cfg.addr())
}

func TestTruncateStatement(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "GET k", truncateStatement("GET k"))

	long := "GET " + strings.Repeat("é", 200)
	got := truncateStatement(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), maxStatementTruncateLen+3)
}
