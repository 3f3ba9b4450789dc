package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveGaugePassesThrough(t *testing.T) {
	e := NewEngine()
	rated, ok := e.Observe(Sample{Resource: "vm-1", Field: "mem", Kind: Gauge, Value: 42})
	assert.True(t, ok)
	assert.Equal(t, 42.0, rated)
}

func TestObserveCounterFirstCycleSuppressed(t *testing.T) {
	e := NewEngine()
	_, ok := e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: time.Unix(0, 0), Value: 100})
	assert.False(t, ok, "first observation has no prior sample to rate against")
}

func TestObserveCounterComputesRate(t *testing.T) {
	e := NewEngine()
	t0 := time.Unix(0, 0)
	e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0, Value: 100})

	rated, ok := e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0.Add(2 * time.Second), Value: 300})
	assert.True(t, ok)
	assert.Equal(t, 100.0, rated) // (300-100)/2s
}

func TestObserveCounterResetSuppressed(t *testing.T) {
	e := NewEngine()
	t0 := time.Unix(0, 0)
	e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0, Value: 100})

	// Value dropped below the previous sample: treat as a backend restart.
	_, ok := e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0.Add(time.Second), Value: 10})
	assert.False(t, ok)

	// The reset value is now the new baseline.
	rated, ok := e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0.Add(2 * time.Second), Value: 30})
	assert.True(t, ok)
	assert.Equal(t, 20.0, rated)
}

func TestObserveKeyedByResourceAndField(t *testing.T) {
	e := NewEngine()
	t0 := time.Unix(0, 0)
	e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0, Value: 100})

	// Different resource, same field: independent cache entry, so this is
	// still a first observation and gets suppressed.
	_, ok := e.Observe(Sample{Resource: "vm-2", Field: "cpu", Kind: Counter, At: t0, Value: 5})
	assert.False(t, ok)
}

func TestForgetDropsResourceState(t *testing.T) {
	e := NewEngine()
	t0 := time.Unix(0, 0)
	e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0, Value: 100})
	e.Forget("vm-1")

	_, ok := e.Observe(Sample{Resource: "vm-1", Field: "cpu", Kind: Counter, At: t0.Add(time.Second), Value: 200})
	assert.False(t, ok, "forgotten resource has no prior sample")
}
