package errors

// Code is a machine-readable error code. Codes are stable once assigned and
// follow the pattern CATEGORY_XXX.
type Code string

const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeAuthentication indicates a general authentication failure, including
	// a request that carries no bearer token at all.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the token's exp claim is missing or
	// not in the future.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the token is malformed: wrong
	// segment count, bad base64url, non-JSON header or payload, or no kid.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationUnknownKey indicates the token's kid is absent from
	// the issuer's key set even after a refresh.
	CodeAuthenticationUnknownKey Code = "AUTH_004"

	// CodeAuthenticationSignature indicates the signature did not verify or
	// the declared algorithm is not RS256.
	CodeAuthenticationSignature Code = "AUTH_005"

	// CodeAuthenticationIssuer indicates the iss claim does not match the
	// configured issuer.
	CodeAuthenticationIssuer Code = "AUTH_006"

	// CodeAuthorizationDenied indicates the caller's email is not on the
	// administrator allowlist.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// CodeNotFound indicates the requested record does not exist.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundResource indicates the requested table is not exposed.
	CodeNotFoundResource Code = "NF_003"

	// CodeConflict indicates a write conflicts with existing state, such as
	// a unique slug.
	CodeConflict Code = "CONF_001"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates the process is misconfigured, for
	// example a missing issuer URL. Every request fails the same way until
	// the configuration is fixed.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableKeySet indicates the issuer's key set could not be
	// fetched and no usable cached key exists.
	CodeUnavailableKeySet Code = "UNAVAIL_004"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the code (e.g., "AUTH", "UNAVAIL").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
