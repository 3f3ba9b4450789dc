package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/inventory"
)

// Delete removes a VM record. Only terminal or never-started VMs may be
// deleted directly — a Running VM must be Stopped first, so a delete never
// races a live backend process.
func (m *manager) Delete(ctx context.Context, id string) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	vm, err := m.inv.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if vm.Status != inventory.StatusCreated && !IsTerminal(vm.Status) {
		return fmt.Errorf("%w: vm %s is %s, stop it before deleting", ErrInvalidTransition, id, vm.Status)
	}

	if alloc, err := m.net.GetAllocation(ctx, id); err == nil && alloc != nil {
		if err := m.net.ReleaseAllocation(ctx, alloc); err != nil {
			return fmt.Errorf("release network allocation: %w", err)
		}
	}

	if err := m.inv.DeleteVM(ctx, id); err != nil {
		return fmt.Errorf("delete vm record: %w", err)
	}
	return nil
}
