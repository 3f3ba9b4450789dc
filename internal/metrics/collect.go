package metrics

import (
	"context"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

// CollectStats feeds one hypervisor.Adapter.Stats sample for vmID through
// every relevant instrument. internal/drivers' collector driver calls this
// once per VM per sampling tick (§4.K).
func (c *Collector) CollectStats(ctx context.Context, vmID string, s hypervisor.Stats) {
	base := Sample{Resource: vmID, At: s.SampledAt}

	c.RecordCPU(ctx, vmID, Sample{Resource: vmID, Field: "cpu_time_ns", Kind: Counter, At: s.SampledAt, Value: float64(s.CPUTimeNanos)})
	c.RecordMemory(ctx, vmID, s.MemoryUsedBytes)

	for device, read := range s.BlockReadBytes {
		write := s.BlockWriteBytes[device]
		c.RecordBlock(ctx, vmID, device, float64(read), float64(write), base)
	}
	for iface, rx := range s.NetRxBytes {
		tx := s.NetTxBytes[iface]
		c.RecordNet(ctx, vmID, iface, float64(rx), float64(tx), base)
	}
}
