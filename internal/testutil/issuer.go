package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

const (
	// DefaultKeyID is the kid of the key every TestIssuer starts with.
	DefaultKeyID = "test-key-1"

	// IssuerPath is appended to the server URL to form the iss claim.
	IssuerPath = "/auth/v1"

	jwksPath = IssuerPath + "/.well-known/jwks.json"
)

// TestIssuer is an identity provider stand-in: an httptest server
// publishing a JWKS plus the RSA private keys to mint matching tokens.
//
//	iss := testutil.NewTestIssuer(t)
//	cfg := auth.Config{IssuerURL: iss.URL()}
//	token := iss.Token(t, "admin@example.com")
type TestIssuer struct {
	server *httptest.Server

	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey

	status atomic.Int32
	hits   atomic.Int64
}

// NewTestIssuer starts a TestIssuer publishing [DefaultKeyID]. The server
// is closed by t.Cleanup.
func NewTestIssuer(t testing.TB) *TestIssuer {
	t.Helper()

	ti := &TestIssuer{keys: make(map[string]*rsa.PrivateKey)}
	ti.AddKey(t, DefaultKeyID)

	mux := http.NewServeMux()
	mux.HandleFunc(jwksPath, ti.handleJWKS)
	ti.server = httptest.NewServer(mux)
	t.Cleanup(ti.server.Close)

	return ti
}

// URL is the issuer base URL, the value of auth.Config.IssuerURL.
func (ti *TestIssuer) URL() string {
	return ti.server.URL
}

// Issuer is the expected iss claim.
func (ti *TestIssuer) Issuer() string {
	return ti.server.URL + IssuerPath
}

// JWKSURL is where the key set is served.
func (ti *TestIssuer) JWKSURL() string {
	return ti.server.URL + jwksPath
}

// Client returns an HTTP client for the issuer server.
func (ti *TestIssuer) Client() *http.Client {
	return ti.server.Client()
}

// Hits counts JWKS requests served, failed ones included.
func (ti *TestIssuer) Hits() int64 {
	return ti.hits.Load()
}

// FailWith makes the JWKS endpoint answer with status. Zero restores
// normal responses.
func (ti *TestIssuer) FailWith(status int) {
	ti.status.Store(int32(status))
}

// AddKey generates and publishes a new RSA key under kid.
func (ti *TestIssuer) AddKey(t testing.TB, kid string) *rsa.PrivateKey {
	t.Helper()
	priv := GenerateRSAKey(t)

	ti.mu.Lock()
	ti.keys[kid] = priv
	ti.mu.Unlock()

	return priv
}

// RemoveKey stops publishing kid, as after a key rotation.
func (ti *TestIssuer) RemoveKey(kid string) {
	ti.mu.Lock()
	delete(ti.keys, kid)
	ti.mu.Unlock()
}

// Claims returns claims the issuer would put in a session token for email,
// expiring after ttl.
func (ti *TestIssuer) Claims(email string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   ti.Issuer(),
		"sub":   "user-" + email,
		"aud":   "authenticated",
		"role":  "authenticated",
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
}

// Token mints a one-hour token for email signed with [DefaultKeyID].
func (ti *TestIssuer) Token(t testing.TB, email string) string {
	t.Helper()
	return ti.Sign(t, DefaultKeyID, ti.Claims(email, time.Hour))
}

// Sign signs claims with the published key kid.
func (ti *TestIssuer) Sign(t testing.TB, kid string, claims jwt.MapClaims) string {
	t.Helper()

	ti.mu.Lock()
	priv, ok := ti.keys[kid]
	ti.mu.Unlock()
	require.True(t, ok, "test issuer has no key %q", kid)

	return SignRS256(t, priv, kid, claims)
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	ti.hits.Add(1)

	if status := int(ti.status.Load()); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	ti.mu.Lock()
	kids := make([]string, 0, len(ti.keys))
	for kid := range ti.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := jwk.NewSet()
	for _, kid := range kids {
		key, err := jwk.FromRaw(&ti.keys[kid].PublicKey)
		if err == nil {
			_ = key.Set(jwk.KeyIDKey, kid)
			_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
			_ = key.Set(jwk.KeyUsageKey, "sig")
			err = set.AddKey(key)
		}
		if err != nil {
			ti.mu.Unlock()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	ti.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// GenerateRSAKey returns a fresh 2048-bit key.
func GenerateRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return priv
}

// SignRS256 signs claims with priv and sets the kid header.
func SignRS256(t testing.TB, priv *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	require.NoError(t, err, "failed to sign RS256 token")
	return signed
}
