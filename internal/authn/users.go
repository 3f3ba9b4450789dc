package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/store"
)

// CreateUser persists a new local user, reserving the username for
// uniqueness in the same transaction (the pattern store.Tx.Reserve's doc
// comment describes, the same one internal/inventory uses for VM/container
// names).
func (m *manager) CreateUser(ctx context.Context, u User) error {
	return m.store.Update(func(tx *store.Tx) error {
		if err := tx.Reserve(store.BucketUsers, "username", u.Username, u.ID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrUserExists
			}
			return err
		}
		if err := tx.Insert(store.BucketUsers, u.ID, u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

// GetUser reads one user by id.
func (m *manager) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := m.store.View(func(tx *store.Tx) error {
		if err := tx.Get(store.BucketUsers, id, &u); err != nil {
			return wrapNotFound(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername resolves a username to its user record via the
// secondary index reserved at creation.
func (m *manager) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := m.store.View(func(tx *store.Tx) error {
		id, err := tx.Lookup(store.BucketUsers, "username", username)
		if err != nil {
			return wrapNotFound(err)
		}
		return wrapNotFound(tx.Get(store.BucketUsers, id, &u))
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every local user record.
func (m *manager) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[User](tx, store.BucketUsers, func(_ string, v *User) error {
			out = append(out, *v)
			return nil
		})
	})
	return out, err
}

func wrapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
