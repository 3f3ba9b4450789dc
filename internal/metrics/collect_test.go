package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/stretchr/testify/require"
)

func TestCollectStatsNilMeterIsNoop(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)

	ctx := context.Background()
	c.CollectStats(ctx, "vm-1", hypervisor.Stats{
		CPUTimeNanos:    1000,
		MemoryUsedBytes: 2048,
		BlockReadBytes:  map[string]uint64{"vda": 10},
		BlockWriteBytes: map[string]uint64{"vda": 5},
		NetRxBytes:      map[string]uint64{"eth0": 100},
		NetTxBytes:      map[string]uint64{"eth0": 50},
		SampledAt:       time.Now(),
	})
	// Second call exercises the rated path with cached prior values.
	c.CollectStats(ctx, "vm-1", hypervisor.Stats{
		CPUTimeNanos:    2000,
		MemoryUsedBytes: 4096,
		BlockReadBytes:  map[string]uint64{"vda": 20},
		BlockWriteBytes: map[string]uint64{"vda": 15},
		NetRxBytes:      map[string]uint64{"eth0": 200},
		NetTxBytes:      map[string]uint64{"eth0": 150},
		SampledAt:       time.Now().Add(time.Second),
	})

	c.Forget("vm-1")
}
