package drivers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

type stubConsoleAdapter struct {
	hypervisor.Adapter
}

func (stubConsoleAdapter) ConsoleEndpoint(ctx context.Context, id string, kind hypervisor.ConsoleKind) (hypervisor.Endpoint, error) {
	return hypervisor.Endpoint{Network: "tcp", Address: "127.0.0.1:0"}, nil
}

func TestReaperSweepsPeriodically(t *testing.T) {
	cm := console.NewManager(10 * time.Millisecond)
	if _, err := cm.IssueTicket(context.Background(), stubConsoleAdapter{}, "vm-1", hypervisor.ConsoleVNC); err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	r := &Reaper{console: cm, log: slog.Default(), interval: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reaper.Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not return after context timeout")
	}

	if n := cm.Reap(); n > 0 {
		t.Fatalf("expected reaper to have already swept the expired ticket, but Reap() found %d more", n)
	}
}

func TestReaperUsesDefaultIntervalFromConstructor(t *testing.T) {
	cm := console.NewManager(time.Minute)
	r := NewReaper(cm, slog.Default())
	if r.interval != reapInterval {
		t.Fatalf("expected default interval %v, got %v", reapInterval, r.interval)
	}
}
