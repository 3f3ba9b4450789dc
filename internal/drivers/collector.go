package drivers

import (
	"context"
	"log/slog"
	"time"

	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/metrics"
)

const (
	hostSampleInterval     = 5 * time.Second
	resourceSampleInterval = 10 * time.Second
)

// HostSampler samples whole-host counters (probe-like, §4.B); kept as a
// narrow function type rather than an interface since a single call is
// the entire contract.
type HostSampler func(ctx context.Context) (hypervisor.Stats, error)

// Collector is the metric-collection driver (§4.K): every
// resourceSampleInterval it samples each Running/Paused VM via the
// adapter and feeds internal/metrics' rate engine, and every
// hostSampleInterval it does the same for the host as a whole, then
// republishes both as eventbus events so subscribed dashboards see live
// numbers instead of only OTLP-exported ones.
type Collector struct {
	inv     inventory.Manager
	adapter hypervisor.Adapter
	host    HostSampler
	coll    *metrics.Collector
	bus     *eventbus.Bus
	log     *slog.Logger
}

func NewCollector(inv inventory.Manager, adapter hypervisor.Adapter, host HostSampler, coll *metrics.Collector, bus *eventbus.Bus, log *slog.Logger) *Collector {
	return &Collector{inv: inv, adapter: adapter, host: host, coll: coll, bus: bus, log: log}
}

func (c *Collector) Name() string { return "collector" }

func (c *Collector) Run(ctx context.Context) error {
	vmTicker := time.NewTicker(resourceSampleInterval)
	defer vmTicker.Stop()
	hostTicker := time.NewTicker(hostSampleInterval)
	defer hostTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-vmTicker.C:
			c.sampleVMs(ctx)
		case <-hostTicker.C:
			c.sampleHost(ctx)
		}
	}
}

func (c *Collector) sampleVMs(ctx context.Context) {
	vms, err := c.inv.ListVMs(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "collector: list vms failed", "error", err)
		return
	}
	for _, vm := range vms {
		if vm.Status != inventory.StatusRunning && vm.Status != inventory.StatusPaused {
			continue
		}
		stats, err := c.adapter.Stats(ctx, vm.ID)
		if err != nil {
			if err != hypervisor.ErrUnsupported {
				c.log.DebugContext(ctx, "collector: stats failed", "vm_id", vm.ID, "error", err)
			}
			continue
		}
		c.coll.CollectStats(ctx, vm.ID, stats)
		c.bus.Publish(eventbus.TopicVMMetrics, map[string]any{"vm_id": vm.ID, "stats": stats})
	}
}

func (c *Collector) sampleHost(ctx context.Context) {
	if c.host == nil {
		return
	}
	stats, err := c.host(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "collector: host sample failed", "error", err)
		return
	}
	c.coll.CollectStats(ctx, "host", stats)
	c.bus.Publish(eventbus.TopicNodeMetrics, map[string]any{"stats": stats})
}
