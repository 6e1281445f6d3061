package auth

import (
	"strings"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// AdminPolicy authorizes verified callers against an email allowlist. An
// AdminPolicy is immutable and safe for concurrent use.
type AdminPolicy struct {
	allowed map[string]struct{}
}

// NewAdminPolicy builds a policy from emails. Entries are trimmed and
// lower-cased; blanks are dropped. An empty result admits every caller.
func NewAdminPolicy(emails []string) *AdminPolicy {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &AdminPolicy{allowed: allowed}
}

// ParseAllowlist splits a comma-separated allowlist into normalized
// entries.
func ParseAllowlist(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = normalizeEmail(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Open reports whether the allowlist is empty, admitting everyone.
func (p *AdminPolicy) Open() bool {
	return len(p.allowed) == 0
}

// Size returns the number of distinct allowlisted emails.
func (p *AdminPolicy) Size() int {
	return len(p.allowed)
}

// Allows reports whether email is on the allowlist.
func (p *AdminPolicy) Allows(email string) bool {
	if p.Open() {
		return true
	}
	_, ok := p.allowed[normalizeEmail(email)]
	return ok
}

// Authorize returns [sserr.CodeAuthorizationDenied] unless claims carry an
// allowlisted email or the allowlist is empty.
func (p *AdminPolicy) Authorize(claims TokenClaims) error {
	if p.Open() {
		return nil
	}
	if claims.Email == "" {
		return sserr.New(sserr.CodeAuthorizationDenied, "auth: token carries no email")
	}
	if !p.Allows(claims.Email) {
		return sserr.New(sserr.CodeAuthorizationDenied, "auth: caller is not an administrator")
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
