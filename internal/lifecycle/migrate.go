package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
)

// MigrateBegin transitions a Running VM to Migrating and starts the
// backend's live-migration transfer. Progress is polled via
// MigrateAdvance; the caller is responsible for calling Finalize once the
// adapter reports the transfer complete, or Abort to cancel.
func (m *manager) MigrateBegin(ctx context.Context, id string, target hypervisor.MigrationTarget) (*Job, error) {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	if busy, err := m.hasOutstandingJob(ctx, id); err != nil {
		return nil, err
	} else if busy {
		return nil, ErrJobInProgress
	}

	vm, err := m.inv.GetVM(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTo(vm.Status, inventory.StatusMigrating) {
		return nil, fmt.Errorf("%w: vm %s cannot migrate from %s", ErrInvalidTransition, id, vm.Status)
	}

	job := Job{ID: "job-migrate-" + id, Kind: JobMigrate, VMID: id, Status: JobRunning, CreatedAt: m.now(), UpdatedAt: m.now()}
	if err := m.createJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.adapter.MigrateBegin(ctx, id, target); err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("begin migration: %w", err)
	}

	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusMigrating
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return &job, fmt.Errorf("mark vm migrating: %w", err)
	}
	return &job, nil
}

// MigrateAdvance polls the adapter for transfer progress.
func (m *manager) MigrateAdvance(ctx context.Context, id string) (hypervisor.MigrationProgress, error) {
	return m.adapter.MigrateAdvance(ctx, id)
}

// MigrateFinalize completes a migration: the backend cuts over to the
// destination, and the VM returns to Running.
func (m *manager) MigrateFinalize(ctx context.Context, id string) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	if err := m.adapter.MigrateFinalize(ctx, id); err != nil {
		m.markFailed(ctx, id, "migration finalize failed: "+err.Error())
		return fmt.Errorf("finalize migration: %w", err)
	}
	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusRunning
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return fmt.Errorf("mark vm running: %w", err)
	}
	return m.finishJob(ctx, "job-migrate-"+id, JobDone, "")
}

// MigrateAbort cancels an in-flight migration and returns the VM to
// Running on the source.
func (m *manager) MigrateAbort(ctx context.Context, id string) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	if err := m.adapter.MigrateAbort(ctx, id); err != nil {
		return fmt.Errorf("abort migration: %w", err)
	}
	if _, err := m.inv.UpdateVM(ctx, id, func(v *inventory.VM) error {
		v.Status = inventory.StatusRunning
		v.UpdatedAt = m.now()
		return nil
	}); err != nil {
		return fmt.Errorf("mark vm running: %w", err)
	}
	return m.finishJob(ctx, "job-migrate-"+id, JobFailed, "aborted by caller")
}
