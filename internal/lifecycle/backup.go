package lifecycle

import (
	"context"
	"fmt"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

// Backup exports a full, memory-less point-in-time copy of a VM's disks to
// destPath. Unlike Snapshot, a backup is not linked into the VM's
// snapshot DAG (§3) — it's an external export the caller is responsible
// for retaining, tracked only via its Job record.
func (m *manager) Backup(ctx context.Context, id string, destPath string) (*Job, error) {
	l := m.workflowLock(id)
	l.Lock()
	defer l.Unlock()

	if busy, err := m.hasOutstandingJob(ctx, id); err != nil {
		return nil, err
	} else if busy {
		return nil, ErrJobInProgress
	}

	job := Job{ID: "job-backup-" + id + "-" + destPath, Kind: JobBackup, VMID: id, Status: JobRunning, CreatedAt: m.now(), UpdatedAt: m.now()}
	if err := m.createJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	opts := hypervisor.SnapshotOptions{SnapshotID: job.ID, DestPath: destPath, WithMemory: false}
	if err := m.adapter.SnapshotCreate(ctx, id, opts); err != nil {
		_ = m.finishJob(ctx, job.ID, JobFailed, err.Error())
		return &job, fmt.Errorf("backup vm: %w", err)
	}

	if err := m.finishJob(ctx, job.ID, JobDone, destPath); err != nil {
		return &job, fmt.Errorf("finish job: %w", err)
	}
	job.Status = JobDone
	return &job, nil
}
