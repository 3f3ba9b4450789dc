package drivers

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
)

type fakeLifecycle struct {
	lifecycle.Manager
	job *lifecycle.Job
	err error
}

func (f *fakeLifecycle) Backup(ctx context.Context, id, destPath string) (*lifecycle.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

func TestBackupSchedulerRunsJobOnCronTick(t *testing.T) {
	lm := &fakeLifecycle{job: &lifecycle.Job{ID: "job-1", VMID: "vm-1"}}
	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()
	sub, err := bus.Subscribe([]eventbus.Topic{eventbus.TopicBackups})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	jobs := []BackupJob{{VMID: "vm-1", DestPath: "/backups/vm-1", Schedule: "@every 10ms"}}
	s := NewBackupScheduler(jobs, lm, bus, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case ev := <-sub.C:
		payload := ev.Payload.(map[string]any)
		if payload["status"] != "started" || payload["vm_id"] != "vm-1" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a backup-started event")
	}

	<-done
}

func TestBackupSchedulerPublishesFailureStatus(t *testing.T) {
	lm := &fakeLifecycle{err: errors.New("disk full")}
	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()
	sub, err := bus.Subscribe([]eventbus.Topic{eventbus.TopicBackups})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	s := NewBackupScheduler(nil, lm, bus, slog.Default())
	s.runBackup(context.Background(), BackupJob{VMID: "vm-2", DestPath: "/backups/vm-2"})

	select {
	case ev := <-sub.C:
		payload := ev.Payload.(map[string]any)
		if payload["status"] != "failed" {
			t.Fatalf("expected failed status, got %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a backup-failed event")
	}
}
