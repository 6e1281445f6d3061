// Package errors defines the structured error type shared by every admingate
// package. Each error carries a machine-readable [Code] of the form
// CATEGORY_XXX, a human-readable message safe to return to callers, an
// optional cause and optional structured details.
//
// The category prefix of a code decides the transport mapping:
//
//   - VAL     request input is invalid (400)
//   - AUTH    the caller could not be authenticated (401)
//   - AUTHZ   the caller is authenticated but not an administrator (403)
//   - NF      the addressed table or record does not exist (404)
//   - CONF    the write conflicts with stored state (409)
//   - INT     unexpected failure or broken configuration (500)
//   - UNAVAIL a dependency such as the key-set endpoint is down (503)
//   - TIMEOUT a dependency did not answer in time (504)
//
// Usage:
//
//	err := errors.New(errors.CodeAuthenticationExpired, "auth: token has expired")
//
//	if errors.IsServerError(err) {
//	    logger.Error("request failed", "error", err)
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("request rejected", "code", e.Code, "message", e.Message)
//	}
package errors
