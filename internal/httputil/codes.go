package httputil

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeMissingCode         = "MISSING_AUTHORIZATION_CODE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeAccountInactive     = "ACCOUNT_INACTIVE"
	CodeUpstreamAuthFailed  = "UPSTREAM_AUTH_FAILED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeIdentityConflict    = "IDENTITY_CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)
