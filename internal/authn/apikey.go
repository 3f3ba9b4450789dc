package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/store"
)

// CreateAPIKey mints a new opaque key for userID, returning both the
// persisted record and the plaintext key — the only time the plaintext is
// ever available, matching the single-issuance contract in §3.
func (m *manager) CreateAPIKey(ctx context.Context, userID, name string, roleIDs []string) (*APIKey, string, error) {
	id, err := randomToken(8)
	if err != nil {
		return nil, "", fmt.Errorf("generate key id: %w", err)
	}
	secret, err := randomToken(24)
	if err != nil {
		return nil, "", fmt.Errorf("generate key secret: %w", err)
	}
	plaintext := id + "." + secret
	k := APIKey{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Digest:    digestKey(plaintext),
		RoleIDs:   roleIDs,
		CreatedAt: m.now(),
	}
	if err := m.store.Update(func(tx *store.Tx) error {
		return tx.Insert(store.BucketAPIKeys, k.ID, k)
	}); err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	return &k, plaintext, nil
}

// ResolveAPIKey validates a plaintext "id.secret" key, bumps LastUsed, and
// returns the Principal it names.
func (m *manager) ResolveAPIKey(ctx context.Context, plaintext string) (*Principal, error) {
	id, _, ok := splitKey(plaintext)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	var k APIKey
	if err := m.store.Update(func(tx *store.Tx) error {
		if err := tx.Get(store.BucketAPIKeys, id, &k); err != nil {
			return wrapNotFound(err)
		}
		if k.Digest != digestKey(plaintext) {
			return ErrInvalidCredentials
		}
		k.LastUsed = m.now()
		return tx.Put(store.BucketAPIKeys, k.ID, k)
	}); err != nil {
		return nil, err
	}
	u, err := m.GetUser(ctx, k.UserID)
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, ErrUserDisabled
	}
	roleIDs := k.RoleIDs
	if len(roleIDs) == 0 {
		roleIDs = u.RoleIDs
	}
	return &Principal{UserID: u.ID, Username: u.Username, RoleIDs: roleIDs, Via: "apikey"}, nil
}

// DeleteAPIKey revokes a key by id.
func (m *manager) DeleteAPIKey(ctx context.Context, id string) error {
	return m.store.Update(func(tx *store.Tx) error {
		return wrapNotFound(tx.Delete(store.BucketAPIKeys, id))
	})
}

// ListAPIKeys returns every key owned by userID (records carry the sha256
// digest, never the plaintext).
func (m *manager) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	var out []APIKey
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[APIKey](tx, store.BucketAPIKeys, func(_ string, v *APIKey) error {
			if v.UserID == userID {
				out = append(out, *v)
			}
			return nil
		})
	})
	return out, err
}

func digestKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func splitKey(plaintext string) (id, secret string, ok bool) {
	for i := 0; i < len(plaintext); i++ {
		if plaintext[i] == '.' {
			return plaintext[:i], plaintext[i+1:], i > 0 && i < len(plaintext)-1
		}
	}
	return "", "", false
}
