package drivers

import (
	"context"
	"log/slog"
	"time"

	"github.com/horcrux-project/horcrux/internal/console"
)

const reapInterval = 60 * time.Second

// Reaper sweeps expired console tickets every 60s (§4.I, §4.K). This is
// purely janitorial — Attach enforces expiry on its own regardless of
// whether this driver ever runs — so a missed tick never causes a stale
// ticket to be honored.
type Reaper struct {
	console  console.Manager
	log      *slog.Logger
	interval time.Duration
}

func NewReaper(c console.Manager, log *slog.Logger) *Reaper {
	return &Reaper{console: c, log: log, interval: reapInterval}
}

func (r *Reaper) Name() string { return "console-reaper" }

func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.console.Reap(); n > 0 {
				r.log.DebugContext(ctx, "console reaper swept expired tickets", "count", n)
			}
		}
	}
}
