// Package authz answers permits(user, resource-path, privilege) → bool
// (§4.G) against the role bindings internal/authn's Principal carries, plus
// a per-principal fixed-window request limiter. Neither has a teacher
// analogue; the glob matcher is modeled on
// cuemby-warren/pkg/storage/boltdb.go's matchWildcard TLS-host matcher,
// generalized from single-wildcard host suffixes to multi-segment paths,
// and the limiter is modeled on lib/builds/queue.go's bounded-concurrency
// queue, adapted from bounded worker slots to bounded request counts in a
// time window.
package authz

import "time"

// Rule binds a resource-path glob to the set of privileges it grants.
// Path segments are slash-separated; "*" matches exactly one segment,
// "**" matches any suffix (including none).
type Rule struct {
	PathGlob   string
	Privileges []string
}

// Role is a named, ordered list of Rules.
type Role struct {
	ID        string
	Name      string
	Rules     []Rule
	CreatedAt time.Time
	UpdatedAt time.Time
}
