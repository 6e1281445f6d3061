package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

func seg(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestDecodeToken_Valid(t *testing.T) {
	t.Parallel()

	header := seg(`{"alg":"RS256","kid":"k1","typ":"JWT"}`)
	payload := seg(`{"sub":"u1","email":"a@example.com"}`)
	raw := header + "." + payload + "." + seg("sig")

	tok, err := decodeToken(raw)
	require.NoError(t, err)

	assert.Equal(t, TokenHeader{Algorithm: "RS256", KeyID: "k1", Type: "JWT"}, tok.header)
	assert.Equal(t, "u1", tok.claims["sub"])
	assert.Equal(t, header+"."+payload, tok.signingInput)
	assert.Equal(t, []byte("sig"), tok.signature)
}

func TestDecodeToken_SigningInputIsVerbatim(t *testing.T) {
	t.Parallel()

	// Whitespace and key order in the header must survive untouched.
	header := seg(`{ "kid" : "k1",  "alg":"RS256" }`)
	payload := seg(`{"b":2, "a":1}`)
	raw := header + "." + payload + "." + seg("sig")

	tok, err := decodeToken(raw)
	require.NoError(t, err)
	assert.Equal(t, raw[:strings.LastIndex(raw, ".")], tok.signingInput)
}

func TestDecodeToken_Malformed(t *testing.T) {
	t.Parallel()

	goodHeader := seg(`{"alg":"RS256","kid":"k1"}`)
	goodPayload := seg(`{"sub":"u1"}`)
	sig := seg("sig")

	tests := []struct {
		name string
		raw  string
	}{
		{"two segments", "abc.def"},
		{"four segments", goodHeader + "." + goodPayload + "." + sig + ".x"},
		{"empty", ""},
		{"header not base64url", "###." + goodPayload + "." + sig},
		{"padded segment", goodHeader + "=." + goodPayload + "." + sig},
		{"header not json", seg("nope") + "." + goodPayload + "." + sig},
		{"header is array", seg(`["RS256"]`) + "." + goodPayload + "." + sig},
		{"header is null", seg("null") + "." + goodPayload + "." + sig},
		{"payload is string", goodHeader + "." + seg(`"claims"`) + "." + sig},
		{"payload not json", goodHeader + "." + seg("{") + "." + sig},
		{"oversized", goodHeader + "." + seg(strings.Repeat("x", maxTokenSize)) + "." + sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decodeToken(tt.raw)
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
		})
	}
}

func TestDecodedToken_RequireKeyMaterial(t *testing.T) {
	t.Parallel()

	payload := seg(`{"sub":"u1"}`)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"kid and signature", seg(`{"alg":"RS256","kid":"k1"}`) + "." + payload + "." + seg("sig"), false},
		{"header without kid", seg(`{"alg":"RS256"}`) + "." + payload + "." + seg("sig"), true},
		{"empty signature", seg(`{"alg":"RS256","kid":"k1"}`) + "." + payload + ".", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tok, err := decodeToken(tt.raw)
			require.NoError(t, err)

			err = tok.requireKeyMaterial()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
		})
	}
}
