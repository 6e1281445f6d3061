package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// maxKeySetSize caps the JWKS response body.
const maxKeySetSize = 1 << 20

// refreshKey is the singleflight key shared by every refresh of a cache.
const refreshKey = "jwks"

// ---------------------------------------------------------------------------
// Signing keys and fetchers
// ---------------------------------------------------------------------------

// SigningKey is a public verification key from the issuer's key set.
type SigningKey struct {
	KeyID     string
	Algorithm string
	FetchedAt time.Time

	publicKey *rsa.PublicKey
}

// NewSigningKey wraps an RSA public key for use with RS256.
func NewSigningKey(kid string, pub *rsa.PublicKey) *SigningKey {
	return &SigningKey{KeyID: kid, Algorithm: jwa.RS256.String(), publicKey: pub}
}

// KeySetFetcher retrieves the issuer's current signing keys.
type KeySetFetcher interface {
	Fetch(ctx context.Context) ([]*SigningKey, error)
}

// HTTPClient is the subset of *http.Client used to fetch key sets.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPKeySetFetcher reads a JWKS document over HTTP.
type HTTPKeySetFetcher struct {
	url    string
	client HTTPClient
}

// NewHTTPKeySetFetcher returns a fetcher for url. A nil client uses an
// *http.Client with a 10 second timeout.
func NewHTTPKeySetFetcher(url string, client HTTPClient) *HTTPKeySetFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPKeySetFetcher{url: url, client: client}
}

// URL returns the JWKS location.
func (f *HTTPKeySetFetcher) URL() string {
	return f.url
}

// Fetch downloads and parses the key set. Keys that are not RSA, lack a
// kid, or declare an algorithm other than RS256 are skipped. A document
// with no usable key is an error.
func (f *HTTPKeySetFetcher) Fetch(ctx context.Context) ([]*SigningKey, error) {
	body, err := f.FetchDocument(ctx)
	if err != nil {
		return nil, err
	}
	return parseKeySet(body)
}

// FetchDocument downloads the raw JWKS document without parsing it.
func (f *HTTPKeySetFetcher) FetchDocument(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch JWKS: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize+1))
	if err != nil {
		return nil, fmt.Errorf("read JWKS: %w", err)
	}
	if len(body) > maxKeySetSize {
		return nil, fmt.Errorf("JWKS exceeds %d bytes", maxKeySetSize)
	}
	return body, nil
}

func parseKeySet(body []byte) ([]*SigningKey, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse JWKS: %w", err)
	}

	keys := make([]*SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyID() == "" || key.KeyType() != jwa.RSA {
			continue
		}
		if alg := key.Algorithm(); alg != nil && alg.String() != "" && alg.String() != jwa.RS256.String() {
			continue
		}

		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			continue
		}
		keys = append(keys, NewSigningKey(key.KeyID(), &pub))
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS contains no usable RS256 keys")
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// Key set cache
// ---------------------------------------------------------------------------

// keySnapshot is an immutable key set. It is replaced, never modified.
type keySnapshot struct {
	keys      map[string]*SigningKey
	fetchedAt time.Time
}

// KeySetStats is a point-in-time view of a [KeySetCache], returned by
// [KeySetCache.Stats]. The admin API reports it from the health endpoint.
//
// LastError is the error of the most recent fetch, or nil when that fetch
// succeeded. A non-nil LastError with Keys > 0 means the cache is serving a
// stale set while the issuer is unreachable.
type KeySetStats struct {
	Keys        int
	FetchedAt   time.Time
	LastAttempt time.Time
	LastError   error
	Fetches     int64
}

// KeySetConfig tunes a [KeySetCache].
type KeySetConfig struct {
	// FetchTimeout bounds one fetch. Zero means [DefaultFetchTimeout].
	FetchTimeout time.Duration

	// RefreshInterval enables background refresh; zero disables it.
	RefreshInterval time.Duration

	Logger *slog.Logger
}

// KeySetCache holds the issuer's signing keys and refreshes them on demand.
//
// A KeySetCache is safe for concurrent use by multiple goroutines. Each
// [Verifier] owns one, reachable through [Verifier.KeySet]; build one
// directly with [NewKeySetCache] only to verify keys outside a Verifier.
//
// # Snapshots
//
// The keys live in an immutable snapshot behind an atomic pointer. A
// successful fetch builds a new snapshot and swaps it in; nothing modifies
// a published snapshot. Lookups therefore never take a lock and never wait
// for a fetch that is in progress.
//
// # Refresh
//
// A token whose kid is not in the snapshot triggers a refresh. Refreshes are
// coalesced: however many callers miss at once, one fetch runs and they all
// wait for it. A caller that arrives after a newer snapshot was published
// sees that snapshot and does not fetch again.
//
// A fetch is bounded by [KeySetConfig.FetchTimeout] and runs detached from
// the caller's context, so a caller that cancels cannot abort a fetch other
// callers share. A failed fetch keeps the previous snapshot: known keys stay
// usable while the issuer is unreachable, and only unknown kids fail.
//
// When [KeySetConfig.RefreshInterval] is set, a hit on a snapshot older than
// the interval starts a background refresh without delaying the caller.
//
// # Usage
//
//	cache := auth.NewKeySetCache(
//	    auth.NewHTTPKeySetFetcher(jwksURL, nil),
//	    auth.KeySetConfig{FetchTimeout: 5 * time.Second, Logger: logger},
//	)
//	if err := cache.Warm(ctx); err != nil {
//	    logger.Warn("issuer keys not loaded yet", "error", err)
//	}
//	key, err := cache.Key(ctx, kid)
type KeySetCache struct {
	fetcher KeySetFetcher
	cfg     KeySetConfig
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	snapshot atomic.Pointer[keySnapshot]
	group    singleflight.Group
	fetches  atomic.Int64

	mu          sync.Mutex
	lastAttempt time.Time
	lastErr     error
}

// NewKeySetCache returns an empty cache backed by fetcher. No fetch happens
// until the first [KeySetCache.Key], [KeySetCache.Refresh] or
// [KeySetCache.Warm] call. A zero FetchTimeout becomes [DefaultFetchTimeout]
// and a nil Logger becomes [slog.Default].
func NewKeySetCache(fetcher KeySetFetcher, cfg KeySetConfig) *KeySetCache {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KeySetCache{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Lookup returns the cached key for kid without fetching. It reports false
// before the first successful fetch.
func (c *KeySetCache) Lookup(kid string) (*SigningKey, bool) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, false
	}
	key, ok := snap.keys[kid]
	return key, ok
}

// Key returns the signing key for kid.
//
// A hit returns immediately from the current snapshot. On a miss Key waits
// for one refresh, shared with concurrent callers, and looks again. The wait
// does not end early when ctx is cancelled; it is bounded by the fetch
// timeout instead.
//
// Errors:
//   - [sserr.CodeAuthenticationUnknownKey] when the refreshed set still has
//     no key with this kid. The token is at fault.
//   - [sserr.CodeUnavailableKeySet] when the refresh failed and the cached set
//     has no such key. The issuer is at fault.
func (c *KeySetCache) Key(ctx context.Context, kid string) (*SigningKey, error) {
	observed := c.snapshot.Load()
	if observed != nil {
		if key, ok := observed.keys[kid]; ok {
			c.maybeSoftRefresh(observed)
			return key, nil
		}
	}

	refreshErr := c.refresh(ctx, observed)

	if key, ok := c.Lookup(kid); ok {
		return key, nil
	}
	if refreshErr != nil {
		return nil, refreshErr
	}
	return nil, sserr.Newf(sserr.CodeAuthenticationUnknownKey,
		"auth: no signing key with kid %q", kid)
}

// Refresh fetches the key set now, joining a fetch already in flight. On
// failure the previous snapshot stays in place and the error carries
// [sserr.CodeUnavailableKeySet].
func (c *KeySetCache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, c.snapshot.Load())
}

// Warm fills an empty cache. It is a no-op once keys are loaded. Call it at
// startup so the first request does not pay for the fetch; a failure is not
// fatal because [KeySetCache.Key] retries on demand.
func (c *KeySetCache) Warm(ctx context.Context) error {
	if snap := c.snapshot.Load(); snap != nil {
		return nil
	}
	return c.Refresh(ctx)
}

// Stats returns a point-in-time view of the cache. It does not fetch.
func (c *KeySetCache) Stats() KeySetStats {
	c.mu.Lock()
	stats := KeySetStats{
		LastAttempt: c.lastAttempt,
		LastError:   c.lastErr,
		Fetches:     c.fetches.Load(),
	}
	c.mu.Unlock()

	if snap := c.snapshot.Load(); snap != nil {
		stats.Keys = len(snap.keys)
		stats.FetchedAt = snap.fetchedAt
	}
	return stats
}

// refresh runs one coalesced fetch and waits for it. observed is the
// snapshot the caller saw; if another fetch has replaced it since, the
// caller's miss has already been answered and no new fetch starts.
//
// The wait is not cancellable. The fetch runs detached from ctx and is
// bounded by FetchTimeout, so a caller that gives up early would only turn
// a healthy issuer into a reported key set outage. ctx still carries trace
// and logging values into the fetch.
func (c *KeySetCache) refresh(ctx context.Context, observed *keySnapshot) error {
	_, err, _ := c.group.Do(refreshKey, func() (any, error) {
		if c.snapshot.Load() != observed {
			return nil, nil
		}
		return nil, c.fetch(context.WithoutCancel(ctx))
	})
	return err
}

// maybeSoftRefresh starts a background fetch when the snapshot is older
// than RefreshInterval and no attempt was made within the interval.
func (c *KeySetCache) maybeSoftRefresh(snap *keySnapshot) {
	interval := c.cfg.RefreshInterval
	if interval <= 0 {
		return
	}
	now := c.now()
	if now.Sub(snap.fetchedAt) < interval {
		return
	}

	c.mu.Lock()
	recent := now.Sub(c.lastAttempt) < interval
	c.mu.Unlock()
	if recent {
		return
	}

	// DoChan runs the fetch on its own goroutine; the buffered result is
	// dropped.
	c.group.DoChan(refreshKey, func() (any, error) {
		if c.snapshot.Load() != snap {
			return nil, nil
		}
		return nil, c.fetch(context.Background())
	})
}

// fetch performs the fetch and swaps the snapshot on success.
func (c *KeySetCache) fetch(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	ctx, span := startSpan(ctx, c.tracer, "auth.RefreshKeySet")
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	c.fetches.Add(1)
	keys, fetchErr := c.fetcher.Fetch(ctx)
	now := c.now()

	c.mu.Lock()
	c.lastAttempt = now
	c.lastErr = fetchErr
	c.mu.Unlock()

	if fetchErr != nil {
		stale := c.snapshot.Load() != nil
		c.logger.WarnContext(ctx, "auth: signing key set refresh failed",
			"error", fetchErr,
			"serving_stale", stale,
		)
		return sserr.Wrap(fetchErr, sserr.CodeUnavailableKeySet,
			"auth: signing key set is unavailable")
	}

	snap := &keySnapshot{keys: make(map[string]*SigningKey, len(keys)), fetchedAt: now}
	for _, k := range keys {
		if k == nil || k.KeyID == "" || k.publicKey == nil {
			continue
		}
		key := *k
		key.FetchedAt = now
		snap.keys[k.KeyID] = &key
	}
	c.snapshot.Store(snap)

	span.SetAttributes(attribute.Int("auth.jwks.keys", len(snap.keys)))
	c.logger.InfoContext(ctx, "auth: signing key set refreshed", "keys", len(snap.keys))
	return nil
}
