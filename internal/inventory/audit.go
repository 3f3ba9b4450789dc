package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/horcrux-project/horcrux/internal/store"
)

// RecordAudit appends an immutable audit entry (§3). Audit records are
// never updated or deleted by anything but retention (not yet implemented
// — see DESIGN.md), so this takes no per-id lock: each id is written
// exactly once.
func (m *manager) RecordAudit(ctx context.Context, ev AuditEvent) error {
	return m.store.Update(func(tx *store.Tx) error {
		if err := tx.Insert(store.BucketAuditEvents, ev.ID, ev); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		return nil
	})
}

// ListAudit returns up to limit audit events for resourceID, most recent
// first. resourceID == "" returns every event, which internal/httpapi's
// admin audit endpoint uses for a global feed.
func (m *manager) ListAudit(ctx context.Context, resourceID string, limit int) ([]AuditEvent, error) {
	var all []AuditEvent
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[AuditEvent](tx, store.BucketAuditEvents, func(_ string, v *AuditEvent) error {
			if resourceID == "" || v.ResourceID == resourceID {
				all = append(all, *v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
