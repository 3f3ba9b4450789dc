package inventory

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/store"
)

const kindContainer = "container"

// CreateContainer persists a new container record, reserving its name.
func (m *manager) CreateContainer(ctx context.Context, c Container) error {
	return m.withLock(kindContainer, c.ID, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			if err := tx.Reserve(store.BucketContainers, "name", c.Name, c.ID); err != nil {
				if errConflict(err) {
					return ErrNameConflict
				}
				return err
			}
			if err := tx.Insert(store.BucketContainers, c.ID, c); err != nil {
				return fmt.Errorf("insert container: %w", err)
			}
			return nil
		})
	})
}

// GetContainer reads one container record by id.
func (m *manager) GetContainer(ctx context.Context, id string) (*Container, error) {
	var out Container
	err := m.withRLock(kindContainer, id, func() error {
		return m.store.View(func(tx *store.Tx) error {
			if err := tx.Get(store.BucketContainers, id, &out); err != nil {
				return wrapNotFound(err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListContainers returns every persisted container record.
func (m *manager) ListContainers(ctx context.Context) ([]Container, error) {
	var out []Container
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[Container](tx, store.BucketContainers, func(_ string, v *Container) error {
			out = append(out, *v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateContainer applies mutate to the current record under its write lock.
func (m *manager) UpdateContainer(ctx context.Context, id string, mutate func(*Container) error) (*Container, error) {
	var out Container
	err := m.withLock(kindContainer, id, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			var cur Container
			if err := tx.Get(store.BucketContainers, id, &cur); err != nil {
				return wrapNotFound(err)
			}
			if err := mutate(&cur); err != nil {
				return err
			}
			if err := tx.Put(store.BucketContainers, id, cur); err != nil {
				return fmt.Errorf("put container: %w", err)
			}
			out = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteContainer removes a container record and its name reservation.
func (m *manager) DeleteContainer(ctx context.Context, id string) error {
	return m.withLock(kindContainer, id, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			var cur Container
			if err := tx.Get(store.BucketContainers, id, &cur); err != nil {
				return wrapNotFound(err)
			}
			if err := tx.ReleaseIndex(store.BucketContainers, "name", cur.Name); err != nil {
				return err
			}
			return tx.Delete(store.BucketContainers, id)
		})
	})
}
