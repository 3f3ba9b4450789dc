package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/inventory"
)

// Pause suspends a Running VM's backend process without tearing down its
// network allocation — a paused VM keeps its IP/MAC/TAP.
func (m *manager) Pause(ctx context.Context, id string) error {
	return m.simpleTransition(ctx, id, inventory.StatusPaused, m.adapter.Pause)
}

// Resume continues a Paused VM's backend process.
func (m *manager) Resume(ctx context.Context, id string) error {
	return m.simpleTransition(ctx, id, inventory.StatusRunning, m.adapter.Resume)
}

// simpleTransition is the shared shape of Pause/Resume: validate the
// transition, call a single id-only adapter method, persist the new
// status or Failed on error.
func (m *manager) simpleTransition(ctx context.Context, id string, to inventory.Status, call func(context.Context, string) error) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	vm, err := m.inv.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransitionTo(vm.Status, to) {
		return fmt.Errorf("%w: vm %s cannot move from %s to %s", ErrInvalidTransition, id, vm.Status, to)
	}

	if err := call(ctx, id); err != nil {
		m.markFailed(ctx, id, "adapter call failed: "+err.Error())
		return fmt.Errorf("transition to %s: %w", to, err)
	}

	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = to
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return fmt.Errorf("persist %s: %w", to, err)
	}
	return nil
}
