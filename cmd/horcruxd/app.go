package main

import (
	"context"
	"log/slog"

	"github.com/horcrux-project/horcrux/internal/authn"
	"github.com/horcrux-project/horcrux/internal/authz"
	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
	"github.com/horcrux-project/horcrux/internal/metrics"
	network "github.com/horcrux-project/horcrux/internal/netalloc"
	"github.com/horcrux-project/horcrux/internal/paths"
	"github.com/horcrux-project/horcrux/internal/store"
	"github.com/horcrux-project/horcrux/internal/volumes"
)

// application bundles every manager horcruxd's HTTP surface and background
// drivers depend on, built once at startup and torn down on shutdown. Kept
// in its own untagged file (unlike the teacher's wire.go, which folds the
// struct into the wireinject-tagged file) so it's visible to both the
// wireinject injector stub and wire_gen.go's hand-mirrored body.
type application struct {
	Ctx       context.Context
	Logger    *slog.Logger
	Config    *config.Config
	Paths     *paths.Paths
	Store     *store.Store
	Network   network.Manager
	Volumes   volumes.Manager
	Inventory inventory.Manager
	Adapter   hypervisor.Adapter
	Lifecycle lifecycle.Manager
	Authn     authn.Manager
	Authz     authz.Manager
	Metrics   *metrics.Collector
	Bus       *eventbus.Bus
	Console   console.Manager
}
