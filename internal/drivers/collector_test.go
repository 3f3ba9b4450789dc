package drivers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/metrics"
)

type fakeInventory struct {
	inventory.Manager
	vms []inventory.VM
}

func (f *fakeInventory) ListVMs(ctx context.Context) ([]inventory.VM, error) {
	return f.vms, nil
}

type fakeAdapter struct {
	hypervisor.Adapter
	stats hypervisor.Stats
	err   error
}

func (f *fakeAdapter) Stats(ctx context.Context, id string) (hypervisor.Stats, error) {
	if f.err != nil {
		return hypervisor.Stats{}, f.err
	}
	return f.stats, nil
}

func TestCollectorSamplesRunningVMsOnly(t *testing.T) {
	inv := &fakeInventory{vms: []inventory.VM{
		{ID: "vm-running", Status: inventory.StatusRunning},
		{ID: "vm-stopped", Status: inventory.StatusStopped},
	}}
	adapter := &fakeAdapter{stats: hypervisor.Stats{CPUTimeNanos: 42}}
	coll, err := metrics.NewCollector(nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()
	sub, err := bus.Subscribe([]eventbus.Topic{eventbus.TopicVMMetrics})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	c := NewCollector(inv, adapter, nil, coll, bus, slog.Default())
	c.sampleVMs(context.Background())

	select {
	case ev := <-sub.C:
		payload := ev.Payload.(map[string]any)
		if payload["vm_id"] != "vm-running" {
			t.Fatalf("expected event for vm-running, got %v", payload["vm_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected a metrics event for the running VM")
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("expected only one event (stopped VM must be skipped), got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCollectorSkipsUnsupportedStatsWithoutError(t *testing.T) {
	inv := &fakeInventory{vms: []inventory.VM{{ID: "vm-1", Status: inventory.StatusRunning}}}
	adapter := &fakeAdapter{err: hypervisor.ErrUnsupported}
	coll, err := metrics.NewCollector(nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()

	c := NewCollector(inv, adapter, nil, coll, bus, slog.Default())
	c.sampleVMs(context.Background())
}

func TestCollectorSampleHostPublishesWhenSamplerSet(t *testing.T) {
	inv := &fakeInventory{}
	adapter := &fakeAdapter{}
	coll, err := metrics.NewCollector(nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()
	sub, err := bus.Subscribe([]eventbus.Topic{eventbus.TopicNodeMetrics})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	host := func(ctx context.Context) (hypervisor.Stats, error) {
		return hypervisor.Stats{MemoryUsedBytes: 123}, nil
	}
	c := NewCollector(inv, adapter, host, coll, bus, slog.Default())
	c.sampleHost(context.Background())

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected a node metrics event")
	}
}

func TestCollectorSampleHostNoopWithoutSampler(t *testing.T) {
	inv := &fakeInventory{}
	adapter := &fakeAdapter{}
	coll, err := metrics.NewCollector(nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	bus := eventbus.NewBus(16)
	bus.Start(context.Background())
	defer bus.Stop()

	c := NewCollector(inv, adapter, nil, coll, bus, slog.Default())
	c.sampleHost(context.Background())
}
