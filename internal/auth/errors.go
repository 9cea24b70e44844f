package auth

import "errors"

var (
	// ErrUnauthenticated covers missing, malformed, forged and expired
	// session tokens. Callers must not learn which check failed.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden means the token is valid but the account is deactivated.
	ErrForbidden = errors.New("account is inactive")

	// ErrUpstreamAuthFailure means the identity provider rejected the
	// authorization code or the access token it issued.
	ErrUpstreamAuthFailure = errors.New("identity provider rejected the login")
	// ErrUpstreamUnavailable means the identity provider could not be
	// reached, timed out, or answered with something we could not use.
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")

	ErrMissingCode = errors.New("authorization code is required")
)
