package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor returns a unary interceptor enforcing the same
// administrator check as [RequireAdmin]. The bearer token is read from the
// "authorization" metadata key. Verified claims are stored in the handler
// context.
//
// Result kinds map to gRPC codes: Unauthenticated, PermissionDenied,
// Unavailable (key set) and Internal (misconfigured). The status message is
// the failure reason.
func UnaryServerInterceptor(authn Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authorizeGRPC(ctx, authn, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming form of
// [UnaryServerInterceptor].
func StreamServerInterceptor(authn Authenticator) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authorizeGRPC(ss.Context(), authn, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authorizeGRPC(ctx context.Context, authn Authenticator, method string) (context.Context, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(HeaderAuthorization); len(values) > 0 {
			token = ExtractBearerToken(values[0])
		}
	}

	var res Result
	if authn == nil {
		res = (*Verifier)(nil).Verify(ctx, token)
	} else {
		res = authn.Verify(ctx, token)
	}

	if res.Authorized() {
		return ContextWithClaims(ctx, res.Claims), nil
	}

	slog.WarnContext(ctx, "auth: gRPC call rejected",
		"kind", res.Kind.String(),
		"reason", string(res.Reason),
		"method", method,
	)
	return ctx, status.Error(grpcCode(res), string(res.Reason))
}

func grpcCode(res Result) codes.Code {
	switch res.Kind {
	case KindAuthorized:
		return codes.OK
	case KindUnauthenticated:
		return codes.Unauthenticated
	case KindForbidden:
		return codes.PermissionDenied
	}
	if res.Reason == ReasonKeySetUnavailable {
		return codes.Unavailable
	}
	return codes.Internal
}

// wrappedServerStream overrides Context so stream handlers see the claims.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
