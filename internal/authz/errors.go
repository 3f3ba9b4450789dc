package authz

import "errors"

var (
	// ErrForbidden is returned by callers that choose to surface a denied
	// Permits check as an error rather than a bare bool.
	ErrForbidden = errors.New("authz: permission denied")

	// ErrRateLimited is returned when a principal/IP has exceeded its
	// request budget for the current window.
	ErrRateLimited = errors.New("authz: rate limit exceeded")

	// ErrNotFound covers role lookups by id that don't exist.
	ErrNotFound = errors.New("authz: role not found")

	// ErrRoleExists is returned by CreateRole on a name collision.
	ErrRoleExists = errors.New("authz: role name already in use")
)
