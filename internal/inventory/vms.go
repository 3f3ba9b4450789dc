package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/store"
)

const kindVM = "vm"

// CreateVM persists a new VM record, reserving its name for uniqueness in
// the same transaction.
func (m *manager) CreateVM(ctx context.Context, vm VM) error {
	return m.withLock(kindVM, vm.ID, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			if err := tx.Reserve(store.BucketVMs, "name", vm.Name, vm.ID); err != nil {
				if errConflict(err) {
					return ErrNameConflict
				}
				return err
			}
			if err := tx.Insert(store.BucketVMs, vm.ID, vm); err != nil {
				return fmt.Errorf("insert vm: %w", err)
			}
			return nil
		})
	})
}

// GetVM reads one VM record by id.
func (m *manager) GetVM(ctx context.Context, id string) (*VM, error) {
	var out VM
	err := m.withRLock(kindVM, id, func() error {
		return m.store.View(func(tx *store.Tx) error {
			if err := tx.Get(store.BucketVMs, id, &out); err != nil {
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

// ListVMs returns every persisted VM record. Order is unspecified; callers
// that need a stable order sort the result.
func (m *manager) ListVMs(ctx context.Context) ([]VM, error) {
	var out []VM
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[VM](tx, store.BucketVMs, func(_ string, v *VM) error {
			out = append(out, *v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateVM reads the current record, applies mutate, and writes the result
// back, all under the VM's write lock so internal/lifecycle's state
// transitions never race against an httpapi read-modify-write.
func (m *manager) UpdateVM(ctx context.Context, id string, mutate func(*VM) error) (*VM, error) {
	var out VM
	err := m.withLock(kindVM, id, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			var cur VM
			if err := tx.Get(store.BucketVMs, id, &cur); err != nil {
				return wrapNotFound(err)
			}
			if err := mutate(&cur); err != nil {
				return err
			}
			if err := tx.Put(store.BucketVMs, id, cur); err != nil {
				return fmt.Errorf("put vm: %w", err)
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

// DeleteVM removes a VM record and its name reservation. Callers must have
// already torn down the hypervisor adapter handle and released its network
// allocation (§4.F) — inventory only owns the record, not the live process.
func (m *manager) DeleteVM(ctx context.Context, id string) error {
	return m.withLock(kindVM, id, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			var cur VM
			if err := tx.Get(store.BucketVMs, id, &cur); err != nil {
				return wrapNotFound(err)
			}
			if err := tx.ReleaseIndex(store.BucketVMs, "name", cur.Name); err != nil {
				return err
			}
			return tx.Delete(store.BucketVMs, id)
		})
	})
}

func wrapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func errConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
