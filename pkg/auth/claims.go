package auth

import (
	"maps"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// TokenClaims are the verified claims of a token. Raw holds the full
// payload; it is a copy and may be read freely.
type TokenClaims struct {
	Issuer    string
	Subject   string
	Email     string
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}

// Claim returns a raw claim by name.
func (c TokenClaims) Claim(name string) (any, bool) {
	v, ok := c.Raw[name]
	return v, ok
}

// validateClaims checks expiry and then issuer, in that order.
func validateClaims(mc jwt.MapClaims, expectedIssuer string, now time.Time) (TokenClaims, error) {
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return TokenClaims{}, sserr.Wrap(err, sserr.CodeAuthenticationInvalid,
			"auth: malformed token: exp is not a number")
	}
	if exp == nil || !exp.After(now) {
		return TokenClaims{}, sserr.New(sserr.CodeAuthenticationExpired, "auth: token has expired")
	}

	iss, err := mc.GetIssuer()
	if err != nil || iss != expectedIssuer {
		return TokenClaims{}, sserr.New(sserr.CodeAuthenticationIssuer, "auth: token issuer is not accepted")
	}

	sub, _ := mc.GetSubject()

	return TokenClaims{
		Issuer:    iss,
		Subject:   sub,
		Email:     emailClaim(mc),
		ExpiresAt: exp.Time,
		Raw:       maps.Clone(mc),
	}, nil
}

// emailClaim returns the top-level email claim, falling back to
// user_metadata.email.
func emailClaim(mc jwt.MapClaims) string {
	if email, ok := mc["email"].(string); ok && strings.TrimSpace(email) != "" {
		return strings.TrimSpace(email)
	}
	if meta, ok := mc["user_metadata"].(map[string]any); ok {
		if email, ok := meta["email"].(string); ok {
			return strings.TrimSpace(email)
		}
	}
	return ""
}
