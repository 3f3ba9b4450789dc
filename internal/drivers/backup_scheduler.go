package drivers

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
)

// BackupJob is one cron-scheduled backup target: VMID gets snapshotted to
// DestPath whenever Schedule (a standard 5-field cron expression) fires.
type BackupJob struct {
	VMID     string
	DestPath string
	Schedule string
}

// BackupScheduler runs cron-expression-driven backups (§4.K), grounded on
// robfig/cron/v3's standard parser and in-process scheduler — a teacher
// dependency reserved for exactly this concern.
type BackupScheduler struct {
	jobs      []BackupJob
	lifecycle lifecycle.Manager
	bus       *eventbus.Bus
	log       *slog.Logger
	cron      *cron.Cron
}

func NewBackupScheduler(jobs []BackupJob, lm lifecycle.Manager, bus *eventbus.Bus, log *slog.Logger) *BackupScheduler {
	return &BackupScheduler{
		jobs:      jobs,
		lifecycle: lm,
		bus:       bus,
		log:       log,
		cron:      cron.New(),
	}
}

func (s *BackupScheduler) Name() string { return "backup-scheduler" }

func (s *BackupScheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.runBackup(ctx, job) }); err != nil {
			s.log.ErrorContext(ctx, "backup scheduler: invalid cron expression", "vm_id", job.VMID, "schedule", job.Schedule, "error", err)
			return err
		}
	}
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

func (s *BackupScheduler) runBackup(ctx context.Context, job BackupJob) {
	jb, err := s.lifecycle.Backup(ctx, job.VMID, job.DestPath)
	if err != nil {
		s.log.ErrorContext(ctx, "scheduled backup failed", "vm_id", job.VMID, "error", err)
		s.bus.Publish(eventbus.TopicBackups, map[string]any{"vm_id": job.VMID, "status": "failed", "error": err.Error()})
		return
	}
	s.bus.Publish(eventbus.TopicBackups, map[string]any{"vm_id": job.VMID, "status": "started", "job_id": jb.ID})
}
