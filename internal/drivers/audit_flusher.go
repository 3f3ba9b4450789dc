package drivers

import (
	"context"
	"log/slog"
	"time"

	"github.com/horcrux-project/horcrux/internal/inventory"
)

const (
	auditFlushInterval = 2 * time.Second
	auditQueueSize     = 1024
)

// AuditFlusher batches AuditEvent writes instead of hitting the store on
// every mutating request inline, the same bounded-queue-plus-periodic-
// drain shape lib/builds/queue.go uses for build submissions, adapted
// here from limiting concurrent work to batching writes. Enqueue is
// non-blocking: a full queue drops the event and counts it rather than
// stalling the HTTP request that produced it.
type AuditFlusher struct {
	inv     inventory.Manager
	log     *slog.Logger
	queue   chan inventory.AuditEvent
	dropped int
}

func NewAuditFlusher(inv inventory.Manager, log *slog.Logger) *AuditFlusher {
	return &AuditFlusher{inv: inv, log: log, queue: make(chan inventory.AuditEvent, auditQueueSize)}
}

func (f *AuditFlusher) Name() string { return "audit-flusher" }

// Enqueue never blocks; callers on the HTTP request path use this instead
// of calling internal/inventory.RecordAudit directly.
func (f *AuditFlusher) Enqueue(ev inventory.AuditEvent) {
	select {
	case f.queue <- ev:
	default:
		f.dropped++
	}
}

func (f *AuditFlusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()
	var batch []inventory.AuditEvent

	flush := func() {
		for _, ev := range batch {
			if err := f.inv.RecordAudit(ctx, ev); err != nil {
				f.log.WarnContext(ctx, "audit flush failed", "error", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case ev := <-f.queue:
			batch = append(batch, ev)
		case <-ticker.C:
			if f.dropped > 0 {
				f.log.WarnContext(ctx, "audit flusher dropped events on a full queue", "dropped", f.dropped)
				f.dropped = 0
			}
			flush()
		}
	}
}
