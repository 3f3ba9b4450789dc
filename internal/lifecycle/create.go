package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/inventory"
)

// Create persists a new VM record in Created state. No adapter call is
// made — the backend process doesn't exist until Start.
func (m *manager) Create(ctx context.Context, req CreateRequest) (*inventory.VM, error) {
	vm := inventory.VM{
		ID:         req.ID,
		Name:       req.Name,
		Status:     inventory.StatusCreated,
		VCPUs:      req.VCPUs,
		MemoryMB:   req.MemoryMB,
		KernelPath: req.KernelPath,
		InitrdPath: req.InitrdPath,
		CmdLine:    req.CmdLine,
		VsockCID:   req.VsockCID,
		Disks:      req.Disks,
		GPUs:       req.GPUs,
		CreatedAt:  m.now(),
		UpdatedAt:  m.now(),
	}
	if err := m.inv.CreateVM(ctx, vm); err != nil {
		return nil, fmt.Errorf("create vm record: %w", err)
	}
	return &vm, nil
}
