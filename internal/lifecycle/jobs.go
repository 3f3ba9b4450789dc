package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/horcrux-project/horcrux/internal/store"
)

// JobKind identifies which workflow a Job record tracks.
type JobKind string

const (
	JobSnapshot JobKind = "snapshot"
	JobClone    JobKind = "clone"
	JobBackup   JobKind = "backup"
	JobMigrate  JobKind = "migrate"
)

// JobStatus is a workflow's own small state machine, independent of the
// VM's Status.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is the persisted record of one snapshot/clone/backup/migration
// workflow (§4.F), grounded in shape on cuemby-warren/pkg/manager/fsm.go's
// persisted-command-log pattern: a workflow is a replayable, recorded
// command rather than bare in-memory state, so a restart mid-workflow
// leaves a Failed record behind instead of silently forgetting it ever
// started. This repository is single-node (§9), so unlike fsm.go's Raft
// log this table is not replicated — only durable across a local restart.
type Job struct {
	ID        string
	Kind      JobKind
	VMID      string
	Status    JobStatus
	Detail    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *manager) createJob(ctx context.Context, j Job) error {
	return m.store.Update(func(tx *store.Tx) error {
		if err := tx.Insert(store.BucketJobs, j.ID, j); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
}

func (m *manager) finishJob(ctx context.Context, id string, status JobStatus, detail string) error {
	return m.store.Update(func(tx *store.Tx) error {
		var j Job
		if err := tx.Get(store.BucketJobs, id, &j); err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		j.Status = status
		j.Detail = detail
		j.UpdatedAt = m.now()
		return tx.Put(store.BucketJobs, id, j)
	})
}

// GetJob reads one job record by id.
func (m *manager) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	err := m.store.View(func(tx *store.Tx) error {
		return tx.Get(store.BucketJobs, id, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns every job recorded for vmID, most recent first.
func (m *manager) ListJobs(ctx context.Context, vmID string) ([]Job, error) {
	var out []Job
	err := m.store.View(func(tx *store.Tx) error {
		return store.List[Job](tx, store.BucketJobs, func(_ string, v *Job) error {
			if v.VMID == vmID {
				out = append(out, *v)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// hasOutstandingJob reports whether vmID already has a Pending or Running
// workflow recorded, used to serialize snapshot/clone/backup/migrate per
// VM (§4.F).
func (m *manager) hasOutstandingJob(ctx context.Context, vmID string) (bool, error) {
	jobs, err := m.ListJobs(ctx, vmID)
	if err != nil {
		return false, err
	}
	for _, j := range jobs {
		if j.Status == JobPending || j.Status == JobRunning {
			return true, nil
		}
	}
	return false, nil
}
