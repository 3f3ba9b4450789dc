package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/inventory"
	network "github.com/horcrux-project/horcrux/internal/netalloc"
)

// Reconcile runs once at startup (§9): it asks internal/inventory to fail
// any VM whose adapter handle didn't survive a restart, then seeds
// netalloc's allocation table from whatever VMs are left Running/Paused,
// so orphaned TAP devices from a crash are told apart from ones still
// owned by a live record. cmd/horcruxd calls this before the HTTP surface
// starts serving requests.
func (m *manager) Reconcile(ctx context.Context) error {
	if _, err := m.inv.Reconcile(ctx, m.adapter); err != nil {
		return fmt.Errorf("reconcile vm records: %w", err)
	}

	vms, err := m.inv.ListVMs(ctx)
	if err != nil {
		return fmt.Errorf("list vms: %w", err)
	}

	var existing []network.Allocation
	for _, vm := range vms {
		if vm.Status != inventory.StatusRunning && vm.Status != inventory.StatusPaused {
			continue
		}
		for _, nic := range vm.NICs {
			existing = append(existing, network.Allocation{
				OwnerID:   vm.ID,
				OwnerName: vm.Name,
				IP:        nic.IP,
				MAC:       nic.MACAddress,
				TAPDevice: nic.TapName,
				State:     "running",
			})
		}
	}

	if err := m.net.Initialize(ctx, existing); err != nil {
		return fmt.Errorf("initialize network manager: %w", err)
	}
	return nil
}
