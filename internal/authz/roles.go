package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/store"
)

func (m *manager) CreateRole(ctx context.Context, r Role) error {
	r.CreatedAt, r.UpdatedAt = m.now(), m.now()
	return m.store.Update(func(tx *store.Tx) error {
		if err := tx.Reserve(store.BucketRoles, "name", r.Name, r.ID); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrRoleExists
			}
			return err
		}
		if err := tx.Insert(store.BucketRoles, r.ID, r); err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
		return nil
	})
}

func (m *manager) GetRole(ctx context.Context, id string) (*Role, error) {
	var r Role
	err := m.store.View(func(tx *store.Tx) error {
		if err := tx.Get(store.BucketRoles, id, &r); err != nil {
			return wrapNotFound(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *manager) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[Role](tx, store.BucketRoles, func(_ string, v *Role) error {
			out = append(out, *v)
			return nil
		})
	})
	return out, err
}

func (m *manager) UpdateRole(ctx context.Context, id string, mutate func(*Role) error) error {
	return m.store.Update(func(tx *store.Tx) error {
		var r Role
		if err := tx.Get(store.BucketRoles, id, &r); err != nil {
			return wrapNotFound(err)
		}
		if err := mutate(&r); err != nil {
			return err
		}
		r.UpdatedAt = m.now()
		return tx.Put(store.BucketRoles, id, r)
	})
}

func (m *manager) DeleteRole(ctx context.Context, id string) error {
	return m.store.Update(func(tx *store.Tx) error {
		var r Role
		if err := tx.Get(store.BucketRoles, id, &r); err != nil {
			return wrapNotFound(err)
		}
		tx.ReleaseIndex(store.BucketRoles, "name", r.Name)
		return tx.Delete(store.BucketRoles, id)
	})
}

func wrapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
