package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	network "github.com/horcrux-project/horcrux/internal/netalloc"
)

// Start transitions a VM from Created/Stopped/Failed to Running: allocate
// a network identity, translate the persisted record into a
// hypervisor.VMSpec, hand it to the adapter, and persist the result. If the
// adapter fails to start the backend, the allocation is released so a
// retried Start doesn't leak a TAP device — the same reverse-order cleanup
// discipline lib/instances/create.go uses via gvisor's cleanup stack,
// applied here with an explicit release in that error branch since there's
// only one resource to unwind. A failure to persist Running afterwards
// does not release it.
func (m *manager) Start(ctx context.Context, id string) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	vm, err := m.inv.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransitionTo(vm.Status, inventory.StatusStarting) {
		return fmt.Errorf("%w: vm %s cannot start from %s", ErrInvalidTransition, id, vm.Status)
	}

	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusStarting
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return fmt.Errorf("mark vm starting: %w", err)
	}

	netCfg, err := m.net.CreateAllocation(ctx, network.AllocateRequest{OwnerID: vm.ID, OwnerName: vm.Name})
	if err != nil {
		m.markFailed(ctx, id, "network allocation failed: "+err.Error())
		return fmt.Errorf("allocate network: %w", err)
	}

	spec := hypervisor.VMSpec{
		ID:         vm.ID,
		Name:       vm.Name,
		VCPUs:      vm.VCPUs,
		MemoryMB:   vm.MemoryMB,
		KernelPath: vm.KernelPath,
		InitrdPath: vm.InitrdPath,
		CmdLine:    vm.CmdLine,
		VsockCID:   vm.VsockCID,
		GPUs:       vm.GPUs,
		NICs:       []hypervisor.NICSpec{{TapName: netCfg.TAPDevice, MACAddress: netCfg.MAC}},
	}
	for _, d := range vm.Disks {
		spec.Disks = append(spec.Disks, hypervisor.DiskSpec{ID: d.VolumeID, ReadOnly: d.ReadOnly})
	}

	if err := m.adapter.Start(ctx, spec); err != nil {
		if alloc, getErr := m.net.GetAllocation(ctx, id); getErr == nil {
			_ = m.net.ReleaseAllocation(ctx, alloc)
		}
		m.markFailed(ctx, id, "adapter start failed: "+err.Error())
		return fmt.Errorf("start backend: %w", err)
	}

	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusRunning
		v.NICs = []inventory.NICRef{{TapName: netCfg.TAPDevice, MACAddress: netCfg.MAC, IP: netCfg.IP}}
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return fmt.Errorf("mark vm running: %w", err)
	}
	return nil
}

// markFailed best-effort transitions a VM to Failed with a detail note,
// swallowing its own error since it's already on a failure path.
func (m *manager) markFailed(ctx context.Context, id, detail string) {
	_, _ = m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusFailed
		v.UpdatedAt = m.now()
		return nil
	})
	_ = m.inv.RecordAudit(ctx, inventory.AuditEvent{
		ID:         "audit-" + id + "-fail-" + detail[:min(8, len(detail))],
		ResourceID: id,
		Action:     "vm.failed",
		Outcome:    "error",
		Detail:     detail,
		CreatedAt:  m.now(),
	})
}
