package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

func TestParseAllowlist(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a@example.com", "b@example.com"},
		ParseAllowlist(" A@Example.com, ,b@example.com,"))
	assert.Empty(t, ParseAllowlist(""))
	assert.Empty(t, ParseAllowlist(" , ,"))
}

func TestAdminPolicy_Allowlist(t *testing.T) {
	t.Parallel()

	p := NewAdminPolicy([]string{"Admin@Example.com", " ops@example.com ", "", "admin@example.com"})
	require.False(t, p.Open())
	assert.Equal(t, 2, p.Size())

	tests := []struct {
		name  string
		email string
		ok    bool
	}{
		{"exact", "admin@example.com", true},
		{"upper case", "ADMIN@EXAMPLE.COM", true},
		{"padded", "  ops@example.com", true},
		{"stranger", "eve@example.com", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.Authorize(TokenClaims{Email: tt.email})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			testutil.AssertErrorCode(t, err, sserr.CodeAuthorizationDenied)
		})
	}
}

func TestAdminPolicy_EmptyAllowsEveryone(t *testing.T) {
	t.Parallel()

	for _, p := range []*AdminPolicy{NewAdminPolicy(nil), NewAdminPolicy([]string{" ", ""})} {
		assert.True(t, p.Open())
		assert.NoError(t, p.Authorize(TokenClaims{Email: "anyone@example.com"}))
		assert.NoError(t, p.Authorize(TokenClaims{}))
	}
}
