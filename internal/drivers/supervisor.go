package drivers

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Supervisor runs a fixed set of Drivers concurrently under one
// errgroup.Group, grounded on cmd/api/main.go's errgroup.WithContext
// wiring of its server/shutdown/log-rotation goroutines: the first driver
// to return an error cancels the shared context, which every other
// driver's Run loop must honor to unwind promptly.
type Supervisor struct {
	drivers []Driver
	log     *slog.Logger
}

// NewSupervisor builds a Supervisor over the given drivers, run in the
// order supplied (order only affects log output, not execution — every
// driver starts concurrently).
func NewSupervisor(log *slog.Logger, drivers ...Driver) *Supervisor {
	return &Supervisor{drivers: drivers, log: log}
}

// Run starts every driver and blocks until ctx is cancelled or one of
// them returns an error, at which point the rest are cancelled too.
func (s *Supervisor) Run(ctx context.Context) error {
	grp, gctx := errgroup.WithContext(ctx)
	for _, d := range s.drivers {
		d := d
		grp.Go(func() error {
			s.log.InfoContext(gctx, "driver starting", "driver", d.Name())
			err := d.Run(gctx)
			if err != nil {
				s.log.ErrorContext(gctx, "driver exited with error", "driver", d.Name(), "error", err)
			} else {
				s.log.InfoContext(gctx, "driver stopped", "driver", d.Name())
			}
			return err
		})
	}
	return grp.Wait()
}
