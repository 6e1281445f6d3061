package auth

import (
	"net/url"
	"strings"
	"time"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

const (
	// DefaultIssuerPath is appended to IssuerURL to form the expected iss
	// claim.
	DefaultIssuerPath = "/auth/v1"

	// DefaultFetchTimeout bounds a single JWKS fetch.
	DefaultFetchTimeout = 5 * time.Second

	// DefaultRefreshInterval is the age after which a key set is refreshed
	// in the background.
	DefaultRefreshInterval = 10 * time.Minute

	jwksSuffix = "/.well-known/jwks.json"
)

// Config configures a [Verifier]. It is loaded with the config package like
// any other struct: defaults from envDefault tags, then a YAML or JSON file,
// then environment variables.
//
// Env tags are relative. The binary nests Config under AUTH with prefix
// ADMINGATE, so IssuerURL is read from ADMINGATE_AUTH_ISSUER_URL.
//
// # Issuer and key set
//
// Only IssuerURL is normally needed. The expected iss claim is IssuerURL
// followed by IssuerPath, and the key set is read from that issuer's
// /.well-known/jwks.json. ExpectedIssuer and JWKSURL override the two
// derived values independently, for issuers that publish keys elsewhere.
//
// # Example
//
//	cfg := auth.Config{
//	    IssuerURL:   "https://abc.supabase.co",
//	    AdminEmails: []string{"ops@example.com"},
//	}
//	cfg.Issuer()    // https://abc.supabase.co/auth/v1
//	cfg.KeySetURL() // https://abc.supabase.co/auth/v1/.well-known/jwks.json
type Config struct {
	// IssuerURL is the identity provider base URL, e.g.
	// "https://abc.supabase.co".
	IssuerURL string `env:"ISSUER_URL" yaml:"issuer_url" json:"issuer_url" required:"true"`

	// IssuerPath is appended to IssuerURL to build the expected issuer.
	// Empty means [DefaultIssuerPath].
	IssuerPath string `env:"ISSUER_PATH" envDefault:"/auth/v1" yaml:"issuer_path" json:"issuer_path"`

	// ExpectedIssuer overrides the derived issuer when non-empty.
	ExpectedIssuer string `env:"EXPECTED_ISSUER" yaml:"expected_issuer" json:"expected_issuer"`

	// JWKSURL overrides the derived key set location when non-empty.
	JWKSURL string `env:"JWKS_URL" yaml:"jwks_url" json:"jwks_url"`

	// AdminEmails is the administrator allowlist. Entries are compared
	// case-insensitively. An empty list admits every authenticated caller.
	AdminEmails []string `env:"ADMIN_EMAILS" yaml:"admin_emails" json:"admin_emails"`

	// FetchTimeout bounds one JWKS fetch. Zero means [DefaultFetchTimeout].
	FetchTimeout time.Duration `env:"JWKS_FETCH_TIMEOUT" envDefault:"5s" yaml:"jwks_fetch_timeout" json:"jwks_fetch_timeout"`

	// RefreshInterval enables background refresh of a key set older than
	// the interval. Zero disables it; keys are then refetched only on a
	// kid miss.
	RefreshInterval time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"10m" yaml:"jwks_refresh_interval" json:"jwks_refresh_interval"`
}

// Validate reports configuration problems with
// [sserr.CodeInternalConfiguration]. Either IssuerURL or ExpectedIssuer must
// be set, and JWKSURL is required when only ExpectedIssuer is. URLs must be
// absolute http or https URLs and durations must not be negative.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.IssuerURL) == "" && c.ExpectedIssuer == "" {
		return sserr.New(sserr.CodeInternalConfiguration, "auth: issuer URL is required")
	}
	if c.IssuerURL != "" {
		if err := validateHTTPURL("issuer URL", c.IssuerURL); err != nil {
			return err
		}
	}
	if c.JWKSURL != "" {
		if err := validateHTTPURL("JWKS URL", c.JWKSURL); err != nil {
			return err
		}
	} else if c.IssuerURL == "" {
		return sserr.New(sserr.CodeInternalConfiguration,
			"auth: JWKS URL is required when only the expected issuer is set")
	}
	if c.FetchTimeout < 0 {
		return sserr.New(sserr.CodeInternalConfiguration, "auth: JWKS fetch timeout must not be negative")
	}
	if c.RefreshInterval < 0 {
		return sserr.New(sserr.CodeInternalConfiguration, "auth: JWKS refresh interval must not be negative")
	}
	return nil
}

// Issuer returns the iss value tokens must carry.
func (c *Config) Issuer() string {
	if c.ExpectedIssuer != "" {
		return c.ExpectedIssuer
	}
	return strings.TrimRight(strings.TrimSpace(c.IssuerURL), "/") + c.issuerPath()
}

// KeySetURL returns the JWKS location.
func (c *Config) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return strings.TrimRight(strings.TrimSpace(c.IssuerURL), "/") + c.issuerPath() + jwksSuffix
}

func (c *Config) issuerPath() string {
	if c.IssuerPath == "" {
		return DefaultIssuerPath
	}
	return c.IssuerPath
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "auth: invalid %s", name)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"auth: %s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}
