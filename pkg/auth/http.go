package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// HeaderAuthorization carries the bearer token. gRPC metadata keys are
	// lower case, so the constant is too; net/http canonicalizes it.
	HeaderAuthorization = "authorization"

	bearerPrefix = "Bearer "
)

// ExtractBearerToken returns the token from an Authorization header value.
// The scheme is matched case-insensitively. It returns "" when the header
// is empty or uses another scheme.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// errorBody is the JSON body written for rejected requests.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RequireAdmin returns middleware that lets a request through only when
// authn.Verify authorizes its bearer token. Verified claims are stored in
// the request context (see [ClaimsFromContext]).
//
// Rejections are JSON {"error": reason, "code": code} with status 401
// (unauthenticated), 403 (not an administrator), 503 (key set unavailable)
// or 500 (misconfigured). A nil authn rejects everything with 500.
//
//	mux.Handle("/api/admin/", auth.RequireAdmin(verifier)(admin))
func RequireAdmin(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))

			var res Result
			if authn == nil {
				res = (*Verifier)(nil).Verify(ctx, token)
			} else {
				res = authn.Verify(ctx, token)
			}

			if !res.Authorized() {
				level := slog.LevelWarn
				if res.Kind == KindConfigurationError {
					level = slog.LevelError
				}
				slog.Log(ctx, level, "auth: request rejected",
					"kind", res.Kind.String(),
					"reason", string(res.Reason),
					"error", res.Err,
					"path", r.URL.Path,
				)
				writeRejection(w, res)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, res.Claims)))
		})
	}
}

func writeRejection(w http.ResponseWriter, res Result) {
	body := errorBody{Error: string(res.Reason)}
	if res.Err != nil {
		body.Code = res.Err.Code.String()
	}
	status := res.HTTPStatus()
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
