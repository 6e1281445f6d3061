package auth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for auth spans.
const tracerName = "github.com/StricklySoft/admingate/pkg/auth"

// Authenticator is implemented by [Verifier]; transports depend on it so
// tests can substitute fixed results.
type Authenticator interface {
	Verify(ctx context.Context, credential string) Result
}

var _ Authenticator = (*Verifier)(nil)

// Option customizes a [Verifier].
type Option func(*verifierOptions)

type verifierOptions struct {
	httpClient HTTPClient
	fetcher    KeySetFetcher
	logger     *slog.Logger
	now        func() time.Time
}

// WithHTTPClient sets the client used to fetch the JWKS.
func WithHTTPClient(c HTTPClient) Option {
	return func(o *verifierOptions) { o.httpClient = c }
}

// WithKeySetFetcher replaces the HTTP JWKS fetcher entirely.
func WithKeySetFetcher(f KeySetFetcher) Option {
	return func(o *verifierOptions) { o.fetcher = f }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *verifierOptions) { o.logger = l }
}

// WithClock sets the time source for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *verifierOptions) { o.now = now }
}

// Verifier authenticates bearer tokens and authorizes administrators.
//
// A Verifier is safe for concurrent use by multiple goroutines. Build one at
// startup with [NewVerifier] and share it between the HTTP middleware
// ([RequireAdmin]) and the gRPC interceptors. It holds no per-request state;
// the only mutable part is its [KeySetCache].
//
// Only RS256 tokens whose iss matches the configured issuer and whose email
// is on the administrator allowlist are authorized.
type Verifier struct {
	issuer string
	keys   *KeySetCache
	policy *AdminPolicy
	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time
}

// NewVerifier validates cfg and builds a Verifier with an empty key set.
// It returns the [Config.Validate] error unchanged when cfg is invalid and
// performs no network I/O. Call [Verifier.Warm] to load keys before serving.
//
// By default keys are fetched from [Config.KeySetURL] with a plain
// *http.Client. [WithKeySetFetcher] replaces that fetcher, for example with
// a [SharedKeySetFetcher] that falls back to a copy kept in Redis.
//
// Example:
//
//	verifier, err := auth.NewVerifier(cfg.Auth, auth.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := verifier.Warm(ctx); err != nil {
//	    logger.Warn("issuer keys not loaded yet", "error", err)
//	}
//	mux.Handle("/api/admin/", auth.RequireAdmin(verifier)(api))
func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := verifierOptions{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = NewHTTPKeySetFetcher(cfg.KeySetURL(), o.httpClient)
	}

	keys := NewKeySetCache(fetcher, KeySetConfig{
		FetchTimeout:    cfg.FetchTimeout,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          o.logger,
	})
	keys.now = o.now

	return &Verifier{
		issuer: cfg.Issuer(),
		keys:   keys,
		policy: NewAdminPolicy(cfg.AdminEmails),
		tracer: otel.Tracer(tracerName),
		logger: o.logger,
		now:    o.now,
	}, nil
}

// Issuer returns the iss value tokens must carry.
func (v *Verifier) Issuer() string {
	return v.issuer
}

// KeySet exposes the key cache for warm-up and health reporting.
func (v *Verifier) KeySet() *KeySetCache {
	return v.keys
}

// Policy returns the administrator policy.
func (v *Verifier) Policy() *AdminPolicy {
	return v.policy
}

// Warm loads the key set if it is empty.
func (v *Verifier) Warm(ctx context.Context) error {
	return v.keys.Warm(ctx)
}

// Verify checks credential and reports whether its bearer is an
// administrator. credential is the raw compact JWS without the "Bearer "
// prefix; [ExtractBearerToken] extracts it from a header.
//
// Verify never returns a raw error. Every failure is a [Result] with a
// [Kind], a stable [Reason] and an *sserr.Error:
//
//   - KindUnauthenticated when the token is missing, malformed, signed with
//     another algorithm or an unknown key, expired, or from another issuer.
//   - KindForbidden when the token is valid but its email is not an
//     administrator. Result.Claims is still populated.
//   - KindConfigurationError when the server cannot decide, because the key
//     set is unavailable or the Verifier is not configured. Calling Verify on
//     a nil Verifier yields this kind.
//
// The checks run in a fixed order. The algorithm is checked before the kid
// and the signature bytes, so a token with a foreign algorithm is rejected
// as a bad signature without touching the key set. Cancelling ctx does not
// interrupt a key set fetch that is already running.
func (v *Verifier) Verify(ctx context.Context, credential string) Result {
	if v == nil || v.keys == nil || v.issuer == "" {
		return failedResult(sserr.New(sserr.CodeInternalConfiguration, "auth: verifier is not configured"))
	}

	ctx, span := startSpan(ctx, v.tracer, "auth.Verify")
	defer span.End()

	res := v.verify(ctx, credential)

	span.SetAttributes(attribute.String("auth.result", res.Kind.String()))
	if res.Reason != "" {
		span.SetAttributes(attribute.String("auth.reason", string(res.Reason)))
	}
	if res.Err != nil {
		finishSpan(span, res.Err)
	}
	return res
}

func (v *Verifier) verify(ctx context.Context, credential string) Result {
	if credential == "" {
		return failedResult(sserr.Unauthorized("auth: no bearer token"))
	}

	tok, err := decodeToken(credential)
	if err != nil {
		return failedResult(err)
	}

	// Only RS256 reaches the key cache.
	if tok.header.Algorithm != signingAlgorithm {
		return failedResult(verifySignature(tok.signingInput, tok.signature, nil, tok.header.Algorithm))
	}
	if err := tok.requireKeyMaterial(); err != nil {
		return failedResult(err)
	}

	key, err := v.keys.Key(ctx, tok.header.KeyID)
	if err != nil {
		return failedResult(err)
	}

	if err := verifySignature(tok.signingInput, tok.signature, key, tok.header.Algorithm); err != nil {
		return failedResult(err)
	}

	claims, err := validateClaims(tok.claims, v.issuer, v.now())
	if err != nil {
		return failedResult(err)
	}

	if err := v.policy.Authorize(claims); err != nil {
		return forbiddenResult(claims, err)
	}

	return authorizedResult(claims)
}

// startSpan starts a span named name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan marks span failed when err is non-nil.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
