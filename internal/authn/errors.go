package authn

import "errors"

var (
	// ErrInvalidCredentials covers any authentication failure whose cause
	// shouldn't be distinguished to the caller (wrong password, unknown
	// user, malformed token) — returning a specific reason would let an
	// attacker enumerate valid usernames.
	ErrInvalidCredentials = errors.New("authn: invalid credentials")

	// ErrSessionExpired is returned by Authenticate/ResolveSession for a
	// session that exists but whose expiry has passed.
	ErrSessionExpired = errors.New("authn: session expired")

	// ErrUserExists is returned by CreateUser on a username collision.
	ErrUserExists = errors.New("authn: username already in use")

	// ErrUserDisabled is returned when a disabled user's credentials are
	// otherwise valid.
	ErrUserDisabled = errors.New("authn: user is disabled")

	// ErrNotFound covers user/session/key lookups by id that don't exist.
	ErrNotFound = errors.New("authn: record not found")
)
