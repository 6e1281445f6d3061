package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(CodeAuthenticationExpired, "auth: token has expired"),
			want: "AUTH_002: auth: token has expired",
		},
		{
			name: "with cause",
			err:  Wrap(errors.New("dial tcp: connection refused"), CodeUnavailableKeySet, "auth: key set unavailable"),
			want: "UNAVAIL_004: auth: key set unavailable: dial tcp: connection refused",
		},
		{
			name: "nested structured cause",
			err:  Wrap(New(CodeTimeoutDatabase, "query timed out"), CodeInternal, "list failed"),
			want: "INT_001: list failed: TIMEOUT_002: query timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("underlying")
	err := Wrap(cause, CodeInternal, "failed")

	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, New(CodeInternal, "no cause").Unwrap())
}

func TestError_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidationRequired, http.StatusBadRequest},
		{CodeAuthenticationInvalid, http.StatusUnauthorized},
		{CodeAuthenticationUnknownKey, http.StatusUnauthorized},
		{CodeAuthenticationSignature, http.StatusUnauthorized},
		{CodeAuthenticationIssuer, http.StatusUnauthorized},
		{CodeAuthorizationDenied, http.StatusForbidden},
		{CodeNotFoundResource, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInternalConfiguration, http.StatusInternalServerError},
		{CodeUnavailableKeySet, http.StatusServiceUnavailable},
		{CodeTimeoutDatabase, http.StatusGatewayTimeout},
		{Code("UNKNOWN"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus())
		})
	}
}

func TestCode_Category(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "AUTH", CodeAuthenticationSignature.Category())
	assert.Equal(t, "AUTHZ", CodeAuthorizationDenied.Category())
	assert.Equal(t, "UNAVAIL", CodeUnavailableKeySet.Category())
	assert.Equal(t, "NOSEP", Code("NOSEP").Category())
}

func TestError_WithDetails_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()
	orig := New(CodeAuthenticationInvalid, "malformed").WithDetail("stage", "decode")
	next := orig.WithDetails(map[string]any{"segments": 2})

	assert.Equal(t, map[string]any{"stage": "decode"}, orig.Details)
	assert.Equal(t, map[string]any{"stage": "decode", "segments": 2}, next.Details)
	assert.Equal(t, orig.Code, next.Code)
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := Wrap(errors.New("boom"), CodeInternal, "failed").WithDetail("k", "v")

	assert.Equal(t, "INT_001: failed: boom", fmt.Sprintf("%v", err))
	assert.Equal(t, "INT_001: failed: boom", fmt.Sprintf("%s", err))
	assert.Equal(t, `"INT_001: failed: boom"`, fmt.Sprintf("%q", err))

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, `Code: "INT_001"`)
	assert.Contains(t, detailed, "Details: map[k:v]")
	assert.Contains(t, detailed, "Cause: boom")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrap(nil, CodeInternal, "x"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "x %d", 1))
}

func TestFromError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FromError(nil))

	structured := Unauthorized("no bearer token")
	assert.Same(t, structured, FromError(fmt.Errorf("wrapped: %w", structured)))

	plain := FromError(errors.New("plain"))
	require.NotNil(t, plain)
	assert.Equal(t, CodeInternal, plain.Code)
}

func TestShorthandConstructors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     *Error
		code    Code
		message string
	}{
		{"validation", Validation("bad input"), CodeValidation, "bad input"},
		{"validationf", Validationf("action %q", "x"), CodeValidation, `action "x"`},
		{"not found", NotFoundf("record %d", 7), CodeNotFound, "record 7"},
		{"unauthorized", Unauthorized("no token"), CodeAuthentication, "no token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.message, tt.err.Message)
			assert.NoError(t, tt.err.Cause)
		})
	}
}

func TestChecks(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("outer: %w", New(CodeUnavailableKeySet, "down"))

	assert.True(t, IsUnavailable(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsServerError(wrapped))
	assert.True(t, HasCode(wrapped, CodeUnavailableKeySet))
	assert.Equal(t, CodeUnavailableKeySet, GetCode(wrapped))

	assert.True(t, IsValidation(Validation("x")))
	assert.True(t, IsNotFound(NotFoundf("record %d", 1)))
	assert.True(t, IsTimeout(New(CodeTimeoutDatabase, "x")))
	assert.False(t, IsServerError(Unauthorized("x")))
	assert.True(t, IsServerError(New(Code("UNKNOWN"), "x")))

	assert.False(t, IsValidation(errors.New("plain")))
	assert.Equal(t, Code(""), GetCode(nil))
	assert.False(t, IsRetryable(nil))
}
