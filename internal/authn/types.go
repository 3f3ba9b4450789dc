// Package authn authenticates a request to a Principal via bearer JWT,
// session cookie, or opaque API key, against a local password realm or a
// pluggable external one (§4.G). Bearer-token validation is grounded on
// lib/middleware/oapi_auth.go's golang-jwt/jwt/v5 HMAC pattern, extended
// from "bearer-only" to the full contract spec §4.G names.
package authn

import "time"

// User is a local-realm account record (§3).
type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2id-encoded, empty for external-realm-only users
	RoleIDs      []string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a server-side session backing a browser cookie (§3).
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// APIKey is an opaque, long-lived credential (§3). Only Digest is
// persisted — the plaintext key is returned to the caller once, at
// creation, and never again.
type APIKey struct {
	ID        string
	UserID    string
	Name      string
	Digest    string // sha256 hex of the plaintext key
	RoleIDs   []string
	CreatedAt time.Time
	LastUsed  time.Time
}

// Principal is the authenticated identity a request carries downstream to
// internal/authz.
type Principal struct {
	UserID   string
	Username string
	RoleIDs  []string
	Via      string // "jwt", "session", "apikey"
}
