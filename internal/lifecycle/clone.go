package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
)

// Clone asks the adapter to copy a VM's disks under a new id/name and, on
// success, persists a new Created-state inventory.VM record for it.
// Backends that can't clone (§9: "unsupported operations return an
// explicit Unsupported") fail the job with that error rather than the
// caller seeing a generic failure.
func (m *manager) Clone(ctx context.Context, id string, opts hypervisor.CloneOptions) (*Job, error) {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	if busy, err := m.hasOutstandingJob(ctx, id); err != nil {
		return nil, err
	} else if busy {
		return nil, ErrJobInProgress
	}

	job := Job{ID: "job-" + opts.NewID, Kind: JobClone, VMID: id, Status: JobRunning, CreatedAt: m.now(), UpdatedAt: m.now()}
	if err := m.createJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.adapter.Clone(ctx, id, opts); err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("clone vm: %w", err)
	}

	src, err := m.inv.GetVM(ctx, id)
	if err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("get source vm: %w", err)
	}
	clone := *src
	clone.ID = opts.NewID
	clone.Name = opts.NewName
	clone.Status = inventory.StatusCreated
	clone.NICs = nil
	clone.CreatedAt = m.now()
	clone.UpdatedAt = m.now()
	if err := m.inv.CreateVM(ctx, clone); err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("persist clone record: %w", err)
	}

	if err := m.finishJob(ctx, job.ID, JobDone, ""); err != nil {
		return &job, fmt.Errorf("finish job: %w", err)
	}
	job.Status = JobDone
	return &job, nil
}
