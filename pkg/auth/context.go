package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const (
	claimsKey contextKey = iota
)

// ContextWithClaims returns a context carrying verified claims.
func ContextWithClaims(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by [RequireAdmin] or the
// gRPC interceptors.
//
//	claims, ok := auth.ClaimsFromContext(r.Context())
//	if !ok {
//	    return sserr.Unauthorized("no claims in context")
//	}
//	logger.Info("admin request", "sub", claims.Subject)
func ClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*TokenClaims)
	return claims, ok && claims != nil
}

// TraceIDFromContext returns the active OpenTelemetry trace ID, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
