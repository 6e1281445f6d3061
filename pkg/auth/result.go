package auth

import (
	"net/http"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

// Kind classifies a verification outcome.
type Kind int

const (
	// KindAuthorized means the caller is an authenticated administrator.
	KindAuthorized Kind = iota

	// KindUnauthenticated means the credential was missing or not trusted.
	KindUnauthenticated

	// KindForbidden means the credential is valid but the caller is not an
	// administrator.
	KindForbidden

	// KindConfigurationError means the server could not decide: the
	// verifier is misconfigured or the key set could not be fetched.
	KindConfigurationError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuthorized:
		return "authorized"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindConfigurationError:
		return "configuration_error"
	default:
		return "unknown"
	}
}

// Reason is a stable machine-readable failure label.
type Reason string

const (
	ReasonMissingToken      Reason = "missing-token"
	ReasonMalformed         Reason = "malformed"
	ReasonUnknownKey        Reason = "unknown-key"
	ReasonBadSignature      Reason = "bad-signature"
	ReasonExpired           Reason = "expired"
	ReasonBadIssuer         Reason = "bad-issuer"
	ReasonForbidden         Reason = "forbidden"
	ReasonKeySetUnavailable Reason = "key-set-unavailable"
	ReasonMisconfigured     Reason = "misconfigured"
)

// Result is the outcome of [Verifier.Verify]. Exactly one of Claims (when
// authorized) or Err (otherwise) is set. Forbidden results also carry
// Claims and Email, since the caller was authenticated.
type Result struct {
	Kind   Kind
	Reason Reason
	Claims *TokenClaims
	Email  string
	Err    *sserr.Error
}

// Authorized reports whether the caller may proceed.
func (r Result) Authorized() bool {
	return r.Kind == KindAuthorized && r.Err == nil
}

// HTTPStatus maps the result to a response status: 200 when authorized,
// otherwise the status of Err (401, 403, 500 or 503).
func (r Result) HTTPStatus() int {
	if r.Authorized() {
		return http.StatusOK
	}
	if r.Err == nil {
		return http.StatusInternalServerError
	}
	return r.Err.HTTPStatus()
}

func authorizedResult(claims TokenClaims) Result {
	return Result{
		Kind:   KindAuthorized,
		Claims: &claims,
		Email:  claims.Email,
	}
}

func forbiddenResult(claims TokenClaims, err error) Result {
	r := failedResult(err)
	r.Claims = &claims
	r.Email = claims.Email
	return r
}

// failedResult classifies err by its code. Errors without a known code are
// treated as misconfiguration.
func failedResult(err error) Result {
	ssErr := sserr.FromError(err)
	if ssErr == nil {
		ssErr = sserr.New(sserr.CodeInternalConfiguration, "auth: verification failed without a cause")
	}

	r := Result{Err: ssErr}
	switch ssErr.Code {
	case sserr.CodeAuthentication:
		r.Kind, r.Reason = KindUnauthenticated, ReasonMissingToken
	case sserr.CodeAuthenticationInvalid:
		r.Kind, r.Reason = KindUnauthenticated, ReasonMalformed
	case sserr.CodeAuthenticationUnknownKey:
		r.Kind, r.Reason = KindUnauthenticated, ReasonUnknownKey
	case sserr.CodeAuthenticationSignature:
		r.Kind, r.Reason = KindUnauthenticated, ReasonBadSignature
	case sserr.CodeAuthenticationExpired:
		r.Kind, r.Reason = KindUnauthenticated, ReasonExpired
	case sserr.CodeAuthenticationIssuer:
		r.Kind, r.Reason = KindUnauthenticated, ReasonBadIssuer
	case sserr.CodeAuthorizationDenied:
		r.Kind, r.Reason = KindForbidden, ReasonForbidden
	case sserr.CodeUnavailableKeySet:
		r.Kind, r.Reason = KindConfigurationError, ReasonKeySetUnavailable
	default:
		r.Kind, r.Reason = KindConfigurationError, ReasonMisconfigured
	}
	return r
}
