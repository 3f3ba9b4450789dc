package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector re-exports the rate engine's output as named OTel instruments,
// the same per-subsystem registration shape as internal/volumes/metrics.go
// and internal/netalloc/metrics.go, applied to VM/container resource
// counters instead of volume/network counts. internal/drivers' metric
// collector driver (§4.K) owns the sampling loop; Collector only turns
// samples already read by internal/probe / a hypervisor.Adapter.Stats call
// into published instruments.
type Collector struct {
	engine *Engine

	cpuRate     metric.Float64Gauge
	memUsed     metric.Int64Gauge
	blockRead   metric.Float64Gauge
	blockWrite  metric.Float64Gauge
	netRx       metric.Float64Gauge
	netTx       metric.Float64Gauge
}

// NewCollector registers every instrument against meter. If meter is nil,
// the returned Collector's Record* methods are no-ops beyond feeding the
// rate engine, mirroring NewManager(..., nil) disabling metrics elsewhere
// in this codebase.
func NewCollector(meter metric.Meter) (*Collector, error) {
	c := &Collector{engine: NewEngine()}
	if meter == nil {
		return c, nil
	}

	var err error
	if c.cpuRate, err = meter.Float64Gauge(
		"horcrux_vm_cpu_seconds_per_second",
		metric.WithDescription("VM CPU time consumption rate"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if c.memUsed, err = meter.Int64Gauge(
		"horcrux_vm_memory_used_bytes",
		metric.WithDescription("VM resident memory usage"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if c.blockRead, err = meter.Float64Gauge(
		"horcrux_vm_block_read_bytes_per_second",
		metric.WithDescription("VM block device read rate"),
		metric.WithUnit("By/s"),
	); err != nil {
		return nil, err
	}
	if c.blockWrite, err = meter.Float64Gauge(
		"horcrux_vm_block_write_bytes_per_second",
		metric.WithDescription("VM block device write rate"),
		metric.WithUnit("By/s"),
	); err != nil {
		return nil, err
	}
	if c.netRx, err = meter.Float64Gauge(
		"horcrux_vm_network_rx_bytes_per_second",
		metric.WithDescription("VM network receive rate"),
		metric.WithUnit("By/s"),
	); err != nil {
		return nil, err
	}
	if c.netTx, err = meter.Float64Gauge(
		"horcrux_vm_network_tx_bytes_per_second",
		metric.WithDescription("VM network transmit rate"),
		metric.WithUnit("By/s"),
	); err != nil {
		return nil, err
	}
	return c, nil
}

// RecordCPU feeds one CPU-time counter sample and publishes the resulting
// rate, if any.
func (c *Collector) RecordCPU(ctx context.Context, vmID string, s Sample) {
	rated, ok := c.engine.Observe(s)
	if !ok || c.cpuRate == nil {
		return
	}
	c.cpuRate.Record(ctx, rated/1e9, metric.WithAttributes(attribute.String("vm_id", vmID)))
}

// RecordMemory publishes an instantaneous gauge sample; memory usage isn't
// a counter, so there's nothing to rate.
func (c *Collector) RecordMemory(ctx context.Context, vmID string, bytes uint64) {
	if c.memUsed == nil {
		return
	}
	c.memUsed.Record(ctx, int64(bytes), metric.WithAttributes(attribute.String("vm_id", vmID)))
}

// RecordBlock feeds one device's cumulative read/write byte counters and
// publishes whichever rates are available this cycle.
func (c *Collector) RecordBlock(ctx context.Context, vmID, device string, readBytes, writeBytes float64, at Sample) {
	attrs := metric.WithAttributes(attribute.String("vm_id", vmID), attribute.String("device", device))
	if rated, ok := c.engine.Observe(Sample{Resource: vmID, Field: "block_read:" + device, Kind: Counter, At: at.At, Value: readBytes}); ok && c.blockRead != nil {
		c.blockRead.Record(ctx, rated, attrs)
	}
	if rated, ok := c.engine.Observe(Sample{Resource: vmID, Field: "block_write:" + device, Kind: Counter, At: at.At, Value: writeBytes}); ok && c.blockWrite != nil {
		c.blockWrite.Record(ctx, rated, attrs)
	}
}

// RecordNet feeds one interface's cumulative rx/tx byte counters and
// publishes whichever rates are available this cycle.
func (c *Collector) RecordNet(ctx context.Context, vmID, iface string, rxBytes, txBytes float64, at Sample) {
	attrs := metric.WithAttributes(attribute.String("vm_id", vmID), attribute.String("interface", iface))
	if rated, ok := c.engine.Observe(Sample{Resource: vmID, Field: "net_rx:" + iface, Kind: Counter, At: at.At, Value: rxBytes}); ok && c.netRx != nil {
		c.netRx.Record(ctx, rated, attrs)
	}
	if rated, ok := c.engine.Observe(Sample{Resource: vmID, Field: "net_tx:" + iface, Kind: Counter, At: at.At, Value: txBytes}); ok && c.netTx != nil {
		c.netTx.Record(ctx, rated, attrs)
	}
}

// Forget drops cached rate state for a VM, e.g. once it's deleted.
func (c *Collector) Forget(vmID string) { c.engine.Forget(vmID) }
