package inventory

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/store"
)

const kindSnapshot = "snapshot"

// CreateSnapshot persists a new snapshot record. Snapshots don't reserve a
// name — they're addressed by id and listed per-VM, never looked up by name
// (§3).
func (m *manager) CreateSnapshot(ctx context.Context, snap Snapshot) error {
	return m.withLock(kindSnapshot, snap.ID, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			if err := tx.Insert(store.BucketSnapshots, snap.ID, snap); err != nil {
				return fmt.Errorf("insert snapshot: %w", err)
			}
			return nil
		})
	})
}

// GetSnapshot reads one snapshot record by id.
func (m *manager) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var out Snapshot
	err := m.withRLock(kindSnapshot, id, func() error {
		return m.store.View(func(tx *store.Tx) error {
			if err := tx.Get(store.BucketSnapshots, id, &out); err != nil {
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

// ListSnapshots returns every snapshot belonging to vmID, forming the DAG a
// caller walks to find a restore path (§3).
func (m *manager) ListSnapshots(ctx context.Context, vmID string) ([]Snapshot, error) {
	var out []Snapshot
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[Snapshot](tx, store.BucketSnapshots, func(_ string, v *Snapshot) error {
			if v.VMID == vmID {
				out = append(out, *v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSnapshot removes a snapshot, refusing if another snapshot's
// ParentID still points at it — deleting an interior DAG node would orphan
// its descendants (§3).
func (m *manager) DeleteSnapshot(ctx context.Context, id string) error {
	return m.withLock(kindSnapshot, id, func() error {
		return m.store.Update(func(tx *store.Tx) error {
			var cur Snapshot
			if err := tx.Get(store.BucketSnapshots, id, &cur); err != nil {
				return wrapNotFound(err)
			}
			hasChild := false
			if err := store.List[Snapshot](tx, store.BucketSnapshots, func(_ string, v *Snapshot) error {
				if v.ParentID == id {
					hasChild = true
				}
				return nil
			}); err != nil {
				return err
			}
			if hasChild {
				return ErrVMHasChildren
			}
			return tx.Delete(store.BucketSnapshots, id)
		})
	})
}
