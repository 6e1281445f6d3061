// Package auth decides whether a bearer credential belongs to an
// authenticated administrator.
//
// A [Verifier] checks a token in a fixed order and stops at the first
// failure:
//
//  1. decode: three base64url segments, JSON header and payload, a kid
//  2. algorithm: only RS256 is accepted, before any key lookup
//  3. key: looked up in a [KeySetCache] filled from the issuer's JWKS,
//     refreshed once (coalesced across callers) on a kid miss
//  4. signature: RS256 over the exact header.payload bytes
//  5. claims: exp must be in the future, iss must match
//  6. policy: the email claim must be on the admin allowlist, unless the
//     allowlist is empty
//
// The outcome is a [Result] whose [Kind] separates authentication failures
// (401), authorization failures (403) and configuration or key-set problems
// on the server side (5xx). [RequireAdmin] and the gRPC interceptors turn a
// Result into a transport response.
//
// Replicas can share the last good key set through a [DocumentStore] by
// wrapping the HTTP fetcher in a [SharedKeySetFetcher].
//
//	v, err := auth.NewVerifier(cfg, auth.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	mux.Handle("/api/admin/", auth.RequireAdmin(v)(adminHandler))
package auth
