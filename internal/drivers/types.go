// Package drivers holds the long-running background tasks horcruxd
// spawns at startup (§4.K): metric collection, the console-ticket reaper,
// a cron-driven backup scheduler, alert evaluation, and audit-log
// flushing. Each driver is a Driver with its own Run loop; Supervisor
// runs them all under one errgroup.Group the way cmd/api/main.go
// supervises its HTTP server, shutdown handler, and log-rotation
// scheduler goroutines together and returns on the first failure.
package drivers

import "context"

// Driver is one background task. Run blocks until ctx is cancelled or the
// driver hits an unrecoverable error.
type Driver interface {
	Name() string
	Run(ctx context.Context) error
}
