package authz

import (
	"context"
	"time"

	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/store"
)

// Manager is the authorization surface: role persistence, the permits()
// pure function, and a fixed-window request limiter.
type Manager interface {
	CreateRole(ctx context.Context, r Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id string, mutate func(*Role) error) error
	DeleteRole(ctx context.Context, id string) error

	// Permits is the pure function described in §3: true iff some role in
	// roleIDs has a rule whose path-glob matches path and whose privilege
	// set contains privilege. Default is deny — an unknown role id, an
	// empty roleIDs slice, or no matching rule all answer false, never an
	// error.
	Permits(ctx context.Context, roleIDs []string, path, privilege string) (bool, error)

	// Allow applies the per-minute rate limit to key (principal id or
	// client IP, chosen by the caller). The window is fixed, not sliding:
	// a key's count resets once a full window has passed since its first
	// counted request.
	Allow(key string) bool
}

type manager struct {
	store   *store.Store
	limiter *limiter
	now     func() time.Time
}

// NewManager wires a Manager backed by s, rate-limiting to
// cfg.AuthRateLimitPerMin requests per key per minute.
func NewManager(s *store.Store, cfg config.Config) Manager {
	now := time.Now
	return &manager{
		store:   s,
		limiter: newLimiter(cfg.AuthRateLimitPerMin, time.Minute, now),
		now:     now,
	}
}

func (m *manager) Allow(key string) bool {
	return m.limiter.Allow(key)
}

func (m *manager) Permits(ctx context.Context, roleIDs []string, path, privilege string) (bool, error) {
	for _, id := range roleIDs {
		role, err := m.GetRole(ctx, id)
		if err != nil {
			continue // unknown/deleted role binding: skip it, default-deny overall
		}
		for _, rule := range role.Rules {
			if matchPath(rule.PathGlob, path) && hasPrivilege(rule.Privileges, privilege) {
				return true, nil
			}
		}
	}
	return false, nil
}
