package drivers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/inventory"
)

type fakeAuditInventory struct {
	inventory.Manager
	mu     sync.Mutex
	events []inventory.AuditEvent
}

func (f *fakeAuditInventory) RecordAudit(ctx context.Context, ev inventory.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAuditInventory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestAuditFlusherFlushesOnContextCancel(t *testing.T) {
	inv := &fakeAuditInventory{}
	f := NewAuditFlusher(inv, slog.Default())
	f.Enqueue(inventory.AuditEvent{ID: "ev-1", Action: "vm.start"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	// give the Run goroutine a moment to start selecting before cancelling
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("f.Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("flusher did not return after context cancel")
	}

	if got := inv.count(); got != 1 {
		t.Fatalf("expected final flush to record 1 event, got %d", got)
	}
}

func TestAuditFlusherDropsOnFullQueueWithoutBlocking(t *testing.T) {
	inv := &fakeAuditInventory{}
	f := NewAuditFlusher(inv, slog.Default())

	for i := 0; i < auditQueueSize+10; i++ {
		f.Enqueue(inventory.AuditEvent{ID: "ev", Action: "vm.start"})
	}
	if f.dropped == 0 {
		t.Fatal("expected some events to be dropped once the queue is full")
	}
}
