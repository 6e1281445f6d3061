package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	priv := testutil.GenerateRSAKey(t)
	other := testutil.GenerateRSAKey(t)
	raw := testutil.SignRS256(t, priv, "k1", jwt.MapClaims{"sub": "u1"})

	tok, err := decodeToken(raw)
	require.NoError(t, err)

	key := NewSigningKey("k1", &priv.PublicKey)
	foreign := NewSigningKey("k1", &other.PublicKey)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, verifySignature(tok.signingInput, tok.signature, key, "RS256"))
	})

	tests := []struct {
		name  string
		input string
		key   *SigningKey
		alg   string
	}{
		{"foreign key", tok.signingInput, foreign, "RS256"},
		{"tampered input", tok.signingInput + "x", key, "RS256"},
		{"nil key", tok.signingInput, nil, "RS256"},
		{"key without material", tok.signingInput, &SigningKey{KeyID: "k1"}, "RS256"},
		{"hs256", tok.signingInput, key, "HS256"},
		{"none", tok.signingInput, key, "none"},
		{"lowercase rs256", tok.signingInput, key, "rs256"},
		{"rs512", tok.signingInput, key, "RS512"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := verifySignature(tt.input, tok.signature, tt.key, tt.alg)
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationSignature)
		})
	}
}
