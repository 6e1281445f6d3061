package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// memoryStore is a DocumentStore backed by a map.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	setHits int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return "", sserr.Newf(sserr.CodeNotFound, "key %q not found", key)
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHits++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = string(value.([]byte))
	s.ttls[key] = ttl
	return nil
}

func TestSharedKeySetFetcher_SavesIssuerDocument(t *testing.T) {
	t.Parallel()

	iss := testutil.NewTestIssuer(t)
	store := newMemoryStore()
	f := NewSharedKeySetFetcher(NewHTTPKeySetFetcher(iss.JWKSURL(), iss.Client()), store,
		SharedKeySetConfig{Key: "jwks:test"})

	keys, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, testutil.DefaultKeyID, keys[0].KeyID)

	assert.Contains(t, store.data["jwks:test"], testutil.DefaultKeyID)
	assert.Equal(t, DefaultSharedKeySetTTL, store.ttls["jwks:test"])
}

func TestSharedKeySetFetcher_FallsBackWhenIssuerFails(t *testing.T) {
	t.Parallel()

	iss := testutil.NewTestIssuer(t)
	store := newMemoryStore()
	source := NewHTTPKeySetFetcher(iss.JWKSURL(), iss.Client())

	// A first replica populates the store.
	_, err := NewSharedKeySetFetcher(source, store, SharedKeySetConfig{}).Fetch(context.Background())
	require.NoError(t, err)

	iss.FailWith(http.StatusBadGateway)

	keys, err := NewSharedKeySetFetcher(source, store, SharedKeySetConfig{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, testutil.DefaultKeyID, keys[0].KeyID)
}

func TestSharedKeySetFetcher_ColdStoreReturnsIssuerError(t *testing.T) {
	t.Parallel()

	iss := testutil.NewTestIssuer(t)
	iss.FailWith(http.StatusInternalServerError)

	store := newMemoryStore()
	f := NewSharedKeySetFetcher(NewHTTPKeySetFetcher(iss.JWKSURL(), iss.Client()), store, SharedKeySetConfig{})

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Zero(t, store.setHits)
}

func TestSharedKeySetFetcher_StoreFailures(t *testing.T) {
	t.Parallel()

	t.Run("set failure still returns issuer keys", func(t *testing.T) {
		t.Parallel()
		iss := testutil.NewTestIssuer(t)
		store := newMemoryStore()
		store.setErr = errors.New("read only replica")

		keys, err := NewSharedKeySetFetcher(NewHTTPKeySetFetcher(iss.JWKSURL(), iss.Client()), store,
			SharedKeySetConfig{}).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("get failure returns issuer error", func(t *testing.T) {
		t.Parallel()
		iss := testutil.NewTestIssuer(t)
		iss.FailWith(http.StatusServiceUnavailable)
		store := newMemoryStore()
		store.getErr = errors.New("connection refused")

		_, err := NewSharedKeySetFetcher(NewHTTPKeySetFetcher(iss.JWKSURL(), iss.Client()), store,
			SharedKeySetConfig{}).Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 503")
	})

	t.Run("corrupt shared copy is ignored", func(t *testing.T) {
		t.Parallel()
		iss := testutil.NewTestIssuer(t)
		iss.FailWith(http.StatusServiceUnavailable)
		store := newMemoryStore()
		store.data["admingate:jwks"] = "not json"

		_, err := NewSharedKeySetFetcher(NewHTTPKeySetFetcher(iss.JWKSURL(), iss.Client()), store,
			SharedKeySetConfig{}).Fetch(context.Background())
		require.Error(t, err)
	})
}

func TestSharedKeySetFetcher_VerifierSurvivesIssuerOutage(t *testing.T) {
	t.Parallel()

	iss := testutil.NewTestIssuer(t)
	store := newMemoryStore()
	cfg := Config{IssuerURL: iss.URL()}

	newVerifier := func() *Verifier {
		shared := NewSharedKeySetFetcher(NewHTTPKeySetFetcher(cfg.KeySetURL(), iss.Client()), store,
			SharedKeySetConfig{Key: "admingate:jwks:" + iss.Issuer()})
		v, err := NewVerifier(cfg, WithKeySetFetcher(shared))
		require.NoError(t, err)
		return v
	}

	require.NoError(t, newVerifier().Warm(context.Background()))

	iss.FailWith(http.StatusBadGateway)

	res := newVerifier().Verify(context.Background(), iss.Token(t, "admin@example.com"))
	assert.Equal(t, KindAuthorized, res.Kind, res.Reason)
}
