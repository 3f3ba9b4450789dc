package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/horcrux-project/horcrux/internal/store"
)

// CreateSession mints and persists a new server-side session for userID,
// valid for ttl.
func (m *manager) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	id, err := randomToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := m.now()
	s := Session{ID: id, UserID: userID, ExpiresAt: now.Add(ttl), CreatedAt: now}
	if err := m.store.Update(func(tx *store.Tx) error {
		return tx.Insert(store.BucketSessions, s.ID, s)
	}); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &s, nil
}

// ResolveSession validates a session id and returns the Principal it
// names, or ErrSessionExpired/ErrNotFound.
func (m *manager) ResolveSession(ctx context.Context, id string) (*Principal, error) {
	var s Session
	if err := m.store.View(func(tx *store.Tx) error {
		return wrapNotFound(tx.Get(store.BucketSessions, id, &s))
	}); err != nil {
		return nil, err
	}
	if m.now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	u, err := m.GetUser(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, ErrUserDisabled
	}
	return &Principal{UserID: u.ID, Username: u.Username, RoleIDs: u.RoleIDs, Via: "session"}, nil
}

// DeleteSession revokes a session (logout).
func (m *manager) DeleteSession(ctx context.Context, id string) error {
	return m.store.Update(func(tx *store.Tx) error {
		return wrapNotFound(tx.Delete(store.BucketSessions, id))
	})
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
