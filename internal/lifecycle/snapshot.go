package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
)

// Snapshot records a new Job, asks the adapter to create the snapshot, and
// on success persists an inventory.Snapshot record linked to parentID —
// forming the DAG §3 describes. Only one snapshot/clone/backup/migrate
// workflow may be outstanding per VM at a time (§4.F).
func (m *manager) Snapshot(ctx context.Context, id string, opts hypervisor.SnapshotOptions, parentID string) (*Job, error) {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	if busy, err := m.hasOutstandingJob(ctx, id); err != nil {
		return nil, err
	} else if busy {
		return nil, ErrJobInProgress
	}

	job := Job{ID: "job-" + opts.SnapshotID, Kind: JobSnapshot, VMID: id, Status: JobRunning, CreatedAt: m.now(), UpdatedAt: m.now()}
	if err := m.createJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.adapter.SnapshotCreate(ctx, id, opts); err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("create snapshot: %w", err)
	}

	if err := m.inv.CreateSnapshot(ctx, inventory.Snapshot{
		ID:         opts.SnapshotID,
		VMID:       id,
		ParentID:   parentID,
		Path:       opts.DestPath,
		WithMemory: opts.WithMemory,
		CreatedAt:  m.now(),
	}); err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("persist snapshot record: %w", err)
	}

	if err := m.finishJob(ctx, job.ID, JobDone, ""); err != nil {
		return &job, fmt.Errorf("finish job: %w", err)
	}
	job.Status = JobDone
	return &job, nil
}

// RestoreSnapshot resets a VM's disk (and, if the snapshot carries memory
// state, its running state) to a prior snapshot.
func (m *manager) RestoreSnapshot(ctx context.Context, id, snapshotID string) error {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	snap, err := m.inv.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}
	if snap.VMID != id {
		return fmt.Errorf("snapshot %s does not belong to vm %s", snapshotID, id)
	}
	if err := m.adapter.SnapshotRestore(ctx, id, snap.Path); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}
