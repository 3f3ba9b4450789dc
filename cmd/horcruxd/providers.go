package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/horcrux-project/horcrux/internal/authn"
	"github.com/horcrux-project/horcrux/internal/authz"
	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/hypervisor/docker"
	"github.com/horcrux-project/horcrux/internal/hypervisor/libvirt"
	"github.com/horcrux-project/horcrux/internal/hypervisor/lxc"
	"github.com/horcrux-project/horcrux/internal/hypervisor/qemu"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
	"github.com/horcrux-project/horcrux/internal/logger"
	"github.com/horcrux-project/horcrux/internal/metrics"
	network "github.com/horcrux-project/horcrux/internal/netalloc"
	"github.com/horcrux-project/horcrux/internal/paths"
	"github.com/horcrux-project/horcrux/internal/store"
	"github.com/horcrux-project/horcrux/internal/volumes"
)

// ProvideLogger builds the default-subsystem logger (§logging). Subsystem
// loggers layered over this one live behind internal/logger.NewSubsystemLogger,
// used directly where a component wants per-subsystem level control; most of
// horcruxd's own wiring just needs the plain default logger.
func ProvideLogger() *slog.Logger {
	return logger.NewLogger(logger.NewConfig())
}

// ProvideContext attaches the logger to the base context so any code path
// that pulls a logger via logger.FromContext gets one even without an
// explicit parameter.
func ProvideContext(log *slog.Logger) context.Context {
	return logger.AddToContext(context.Background(), log)
}

// ProvideConfig loads configuration from the environment.
func ProvideConfig() *config.Config {
	return config.Load()
}

// ProvidePaths derives the data-directory layout from the configured
// database file's parent directory.
func ProvidePaths(cfg *config.Config) *paths.Paths {
	return paths.New(filepath.Dir(cfg.DatabasePath))
}

// ProvideMeter returns the process-wide OTel meter. internal/otelinit.Init
// registers the real SDK meter provider globally when telemetry is
// enabled; when it isn't, otel.Meter returns a safe no-op, which every
// domain manager below already treats as "metrics disabled" rather than
// an error.
func ProvideMeter(cfg *config.Config) metric.Meter {
	return otel.Meter(cfg.OtelServiceName)
}

// ProvideStore opens the bbolt-backed persistence store, creating the data
// directory first since store.Open does not create parent directories.
func ProvideStore(p *paths.Paths) (*store.Store, error) {
	if err := os.MkdirAll(p.DataDir(), 0o750); err != nil {
		return nil, err
	}
	return store.Open(p.DBFile())
}

// ProvideNetworkManager provides the TAP/IP allocator.
func ProvideNetworkManager(p *paths.Paths, cfg *config.Config, meter metric.Meter) network.Manager {
	return network.NewManager(p, cfg, meter)
}

// ProvideVolumeManager provides the storage-pool/volume manager.
func ProvideVolumeManager(st *store.Store, cfg *config.Config, meter metric.Meter) volumes.Manager {
	return volumes.NewManager(st, "default", meter)
}

// ProvideInventoryManager provides the VM/snapshot/container/audit record
// store.
func ProvideInventoryManager(st *store.Store) inventory.Manager {
	return inventory.NewManager(st)
}

// ProvideHypervisorAdapter selects the backend named by
// cfg.ServerHypervisorKind and returns the matching hypervisor.Adapter; all
// four implementations satisfy the same interface (§4.E), so the lifecycle
// manager and the rest of horcruxd never need to know which one is live.
func ProvideHypervisorAdapter(p *paths.Paths, cfg *config.Config) (hypervisor.Adapter, error) {
	switch cfg.ServerHypervisorKind {
	case "", "qemu":
		return qemu.NewAdapter(p), nil
	case "libvirt":
		return libvirt.NewAdapter(cfg.ServerLibvirtSocket), nil
	case "docker":
		return docker.NewAdapter()
	case "lxc":
		return lxc.NewAdapter(cfg.ServerLXCBinary), nil
	default:
		return nil, fmt.Errorf("unknown HORCRUX_SERVER_HYPERVISOR_KIND %q", cfg.ServerHypervisorKind)
	}
}

// ProvideLifecycleManager provides the VM/container state-machine manager.
func ProvideLifecycleManager(inv inventory.Manager, adapter hypervisor.Adapter, net network.Manager, st *store.Store) lifecycle.Manager {
	return lifecycle.NewManager(inv, adapter, net, st)
}

// ProvideAuthnManager provides the authentication manager.
func ProvideAuthnManager(st *store.Store, cfg *config.Config) authn.Manager {
	return authn.NewManager(st, *cfg)
}

// ProvideAuthzManager provides the authorization manager.
func ProvideAuthzManager(st *store.Store, cfg *config.Config) authz.Manager {
	return authz.NewManager(st, *cfg)
}

// ProvideMetricsCollector provides the rate-computing metrics engine fed
// by internal/drivers.Collector.
func ProvideMetricsCollector(meter metric.Meter) (*metrics.Collector, error) {
	return metrics.NewCollector(meter)
}

// ProvideEventBus provides the pub/sub event bus backing the websocket
// surface and the background drivers.
func ProvideEventBus() *eventbus.Bus {
	return eventbus.NewBus(256)
}

// consoleTicketTTL bounds how long an issued VNC/SPICE/serial ticket stays
// redeemable before internal/drivers.Reaper sweeps it (§4.I).
const consoleTicketTTL = 5 * time.Minute

// ProvideConsoleManager provides the console-ticket issuer/relay.
func ProvideConsoleManager() console.Manager {
	return console.NewManager(consoleTicketTTL)
}
