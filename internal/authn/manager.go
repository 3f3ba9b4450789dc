package authn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/store"
)

// Manager is the full authn surface: user/session/key persistence plus the
// single Authenticate entry point internal/httpapi's middleware chain
// calls once per request.
type Manager interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error)
	ResolveSession(ctx context.Context, id string) (*Principal, error)
	DeleteSession(ctx context.Context, id string) error

	CreateAPIKey(ctx context.Context, userID, name string, roleIDs []string) (*APIKey, string, error)
	ResolveAPIKey(ctx context.Context, plaintext string) (*Principal, error)
	DeleteAPIKey(ctx context.Context, id string) error
	ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error)

	// IssueToken authenticates username/password against the configured
	// realm chain and, on success, issues both a JWT and a server-side
	// session in one call (covers the login endpoint in §4.J).
	IssueToken(ctx context.Context, username, password string) (token string, session *Session, err error)

	// Authenticate resolves a single credential of unknown kind — a
	// "Bearer <jwt>" header, a raw session id, or an API key — to a
	// Principal. Credential kind is disambiguated the way
	// lib/middleware/oapi_auth.go disambiguates bearer vs cookie: by shape,
	// not by a caller-supplied flag.
	Authenticate(ctx context.Context, credential string) (*Principal, error)

	// AddRealm prepends an external realm ahead of the local password
	// realm for username/password authentication.
	AddRealm(r Realm)
}

type manager struct {
	store *store.Store
	cfg   config.Config
	realm *chainRealm
	now   func() time.Time
}

// NewManager wires a Manager backed by s, using cfg's Auth* fields for
// session TTL and JWT signing. Password verification reads the argon2 cost
// from each stored hash, not from cfg.
func NewManager(s *store.Store, cfg config.Config) Manager {
	m := &manager{store: s, cfg: cfg, now: time.Now}
	m.realm = &chainRealm{realms: []Realm{&localRealm{m: m}}}
	return m
}

func (m *manager) AddRealm(r Realm) {
	m.realm.realms = append([]Realm{r}, m.realm.realms...)
}

func (m *manager) IssueToken(ctx context.Context, username, password string) (string, *Session, error) {
	p, err := m.realm.Authenticate(ctx, username, password)
	if err != nil {
		return "", nil, err
	}
	token, err := IssueJWT(m.cfg.AuthJwtSecret, p.UserID, p.RoleIDs, m.sessionTTL())
	if err != nil {
		return "", nil, fmt.Errorf("issue jwt: %w", err)
	}
	sess, err := m.CreateSession(ctx, p.UserID, m.sessionTTL())
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	return token, sess, nil
}

func (m *manager) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if bearer, ok := strings.CutPrefix(credential, "Bearer "); ok {
		return ParseJWT(m.cfg.AuthJwtSecret, bearer)
	}
	if strings.Contains(credential, ".") {
		p, err := m.ResolveAPIKey(ctx, credential)
		if err == nil {
			return p, nil
		}
		if sp, serr := m.ResolveSession(ctx, credential); serr == nil {
			return sp, nil
		}
		return nil, err
	}
	return m.ResolveSession(ctx, credential)
}

func (m *manager) sessionTTL() time.Duration {
	return time.Duration(m.cfg.AuthSessionTTL) * time.Second
}
