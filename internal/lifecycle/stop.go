package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
)

// Stop transitions a Running/Paused VM to Stopped: ask the adapter to shut
// the backend process down, then release its network allocation. The TAP
// device is also cleaned up automatically when the backend process exits
// (per netalloc's own doc comment), so release here is about freeing the
// IP/MAC for reuse, not the TAP itself.
func (m *manager) Stop(ctx context.Context, id string, mode hypervisor.StopMode) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	vm, err := m.inv.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransitionTo(vm.Status, inventory.StatusStopping) {
		return fmt.Errorf("%w: vm %s cannot stop from %s", ErrInvalidTransition, id, vm.Status)
	}

	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusStopping
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return fmt.Errorf("mark vm stopping: %w", err)
	}

	if err := m.adapter.Stop(ctx, id, mode); err != nil {
		m.markFailed(ctx, id, "adapter stop failed: "+err.Error())
		return fmt.Errorf("stop backend: %w", err)
	}

	if alloc, err := m.net.GetAllocation(ctx, id); err == nil && alloc != nil {
		if relErr := m.net.ReleaseAllocation(ctx, alloc); relErr != nil {
			return fmt.Errorf("release network allocation: %w", relErr)
		}
	}

	_, err = m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusStopped
		v.NICs = nil
		v.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark vm stopped: %w", err)
	}
	return nil
}
