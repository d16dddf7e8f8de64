package service

import (
	"errors"

	"session-auth/internal/identity/federation"
)

// Sentinel errors for the session manager; the handler maps them to gRPC codes.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrAlreadyExists         = errors.New("email already registered")
	ErrNotFound              = errors.New("user not found")
	ErrWrongAuthMethod       = errors.New("account has no password; use federated login")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrRefreshReuseOrInvalid = errors.New("refresh token reused or invalid")
	ErrRefreshExpired        = errors.New("refresh token expired")
	ErrSessionPersistFailed  = errors.New("session could not be persisted")
	ErrInternal              = errors.New("internal error")
)

// Federation errors surfaced unchanged by LoginWithFederatedToken.
var (
	ErrInvalidFederatedToken     = federation.ErrInvalidFederatedToken
	ErrFederatedClaimsIncomplete = federation.ErrFederatedClaimsIncomplete
	ErrFederationLinkDenied      = federation.ErrFederationLinkDenied
	ErrProviderUnavailable       = federation.ErrProviderUnavailable
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidArgument, "invalid_argument"},
	{ErrAlreadyExists, "already_exists"},
	{ErrNotFound, "not_found"},
	{ErrWrongAuthMethod, "wrong_auth_method"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrRefreshReuseOrInvalid, "refresh_reuse_or_invalid"},
	{ErrRefreshExpired, "refresh_expired"},
	{ErrInvalidFederatedToken, "invalid_federated_token"},
	{ErrFederatedClaimsIncomplete, "federated_claims_incomplete"},
	{ErrFederationLinkDenied, "federation_link_denied"},
	{ErrProviderUnavailable, "provider_unavailable"},
	{ErrSessionPersistFailed, "session_persist_failed"},
	{ErrInternal, "internal"},
}

// Reason returns a short stable code for err, used as a metric attribute and in events.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "infrastructure"
}

// IsClientError reports whether err is an expected outcome caused by the caller's input.
func IsClientError(err error) bool {
	switch Reason(err) {
	case "", "provider_unavailable", "session_persist_failed", "internal", "infrastructure":
		return false
	}
	return true
}
