package auth

import (
	"context"
	"log/slog"
	"time"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// DefaultSharedKeySetTTL is how long a shared key set copy is kept.
const DefaultSharedKeySetTTL = 24 * time.Hour

// DocumentFetcher retrieves a raw JWKS document. [HTTPKeySetFetcher]
// implements it.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context) ([]byte, error)
}

// DocumentStore is a key/value store for JWKS documents shared between
// replicas. The Redis client satisfies it. Get returns an error carrying
// [sserr.CodeNotFound] when the key is absent.
type DocumentStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// SharedKeySetConfig tunes a [SharedKeySetFetcher].
type SharedKeySetConfig struct {
	// Key is the store key. Include the issuer so deployments sharing a
	// store do not read each other's keys.
	Key string

	// TTL defaults to [DefaultSharedKeySetTTL].
	TTL time.Duration

	Logger *slog.Logger
}

// SharedKeySetFetcher fetches from the issuer and saves every document
// that parses into the store. When the issuer cannot be reached it serves
// the last saved document instead, so a freshly started replica can verify
// tokens during an issuer outage. Only documents obtained from the issuer
// are ever written.
type SharedKeySetFetcher struct {
	source DocumentFetcher
	store  DocumentStore
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

var _ KeySetFetcher = (*SharedKeySetFetcher)(nil)

// NewSharedKeySetFetcher wraps source with store.
func NewSharedKeySetFetcher(source DocumentFetcher, store DocumentStore, cfg SharedKeySetConfig) *SharedKeySetFetcher {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSharedKeySetTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Key == "" {
		cfg.Key = "admingate:jwks"
	}
	return &SharedKeySetFetcher{
		source: source,
		store:  store,
		key:    cfg.Key,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
}

// Fetch implements [KeySetFetcher]. If both the issuer and the store fail
// the issuer error is returned.
func (f *SharedKeySetFetcher) Fetch(ctx context.Context) ([]*SigningKey, error) {
	doc, err := f.source.FetchDocument(ctx)
	if err == nil {
		keys, perr := parseKeySet(doc)
		if perr == nil {
			if serr := f.store.Set(ctx, f.key, doc, f.ttl); serr != nil {
				f.logger.WarnContext(ctx, "failed to share key set", "error", serr)
			}
			return keys, nil
		}
		err = perr
	}

	shared, gerr := f.store.Get(ctx, f.key)
	if gerr != nil {
		if !sserr.IsNotFound(gerr) {
			f.logger.WarnContext(ctx, "failed to read shared key set", "error", gerr)
		}
		return nil, err
	}

	keys, perr := parseKeySet([]byte(shared))
	if perr != nil {
		f.logger.WarnContext(ctx, "shared key set is unusable", "error", perr)
		return nil, err
	}

	f.logger.WarnContext(ctx, "issuer key set unavailable, using shared copy",
		"error", err, "keys", len(keys))
	return keys, nil
}
