package authn

import "context"

// Realm authenticates a username/password pair. The default realm checks
// the local user store; an external realm (LDAP, SSO token exchange, ...)
// can be plugged in ahead of it without changing anything downstream of
// Principal — the same seam the teacher's provider-adapter packages use to
// keep one call site agnostic of which backend answered it.
type Realm interface {
	Authenticate(ctx context.Context, username, password string) (*Principal, error)
}

// localRealm checks credentials against users persisted in this store.
type localRealm struct {
	m *manager
}

func (r *localRealm) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	u, err := r.m.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Disabled {
		return nil, ErrUserDisabled
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return &Principal{UserID: u.ID, Username: u.Username, RoleIDs: u.RoleIDs, Via: "password"}, nil
}

// chainRealm tries each Realm in order, returning the first success. Used
// to place an external realm ahead of the local fallback.
type chainRealm struct {
	realms []Realm
}

func (c *chainRealm) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	var firstErr error
	for _, r := range c.realms {
		p, err := r.Authenticate(ctx, username, password)
		if err == nil {
			return p, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
