package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

// Reconcile walks every VM this store believes is Running, Paused or
// Stopping and confirms the adapter still has a live process for it. A VM
// whose adapter handle is gone — the daemon crashed and restarted, or the
// process died without notifying anyone — is moved to Failed and an audit
// entry is written, so a stale Running record never shadows reality after a
// restart (§4.D, §9). An Info answer of ErrUnsupported leaves the record as
// it is. lifecycle's Reconcile calls this, which cmd/horcruxd runs once
// during startup, after hypervisor adapters are wired but before
// internal/httpapi starts serving requests.
func (m *manager) Reconcile(ctx context.Context, adapter hypervisor.Adapter) (int, error) {
	vms, err := m.ListVMs(ctx)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, vm := range vms {
		if vm.Status != StatusRunning && vm.Status != StatusPaused && vm.Status != StatusStopping {
			continue
		}
		if _, infoErr := adapter.Info(ctx, vm.ID); infoErr == nil {
			continue
		} else if !errors.Is(infoErr, hypervisor.ErrUnsupported) {
			// Adapter has no live handle for this id: the process is gone.
			prevStatus := vm.Status
			if _, updErr := m.UpdateVM(ctx, vm.ID, func(v *VM) error {
				v.Status = StatusFailed
				v.UpdatedAt = now()
				return nil
			}); updErr != nil {
				return reconciled, updErr
			}
			_ = m.RecordAudit(ctx, AuditEvent{
				ID:         "audit-" + vm.ID + "-reconcile",
				Action:     "vm.reconcile.failed",
				ResourceID: vm.ID,
				Outcome:    "success",
				Detail:     "transitioned from " + string(prevStatus) + " to failed: adapter has no live handle after restart",
				CreatedAt:  now(),
			})
			reconciled++
		}
	}
	return reconciled, nil
}

// now is a seam so tests can stub reconciliation timestamps; production
// always uses the wall clock.
var now = time.Now
