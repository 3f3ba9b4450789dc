// Package metrics is the rate engine sitting between internal/probe's raw
// cumulative samples and the rest of the system's gauges (§4.C): it caches
// the last observed value per (resource, field), differences cumulative
// counters into a per-second rate, and re-exports both rates and gauges as
// go.opentelemetry.io/otel/metric instruments so the same OTLP pipeline
// internal/otelinit wires up carries them onward. Grounded in shape on the
// per-package metrics.go files already in this codebase (each subsystem
// registers its own instruments against a shared metric.Meter); the rate
// engine itself has no direct teacher analogue and is built fresh; a single
// mutex guards the whole cache, so every sample is serialized through it.
package metrics

import "time"

// Kind selects how Observe turns a raw sample into a rated value.
type Kind int

const (
	// Gauge values are reported as-is; no rate is computed.
	Gauge Kind = iota
	// Counter values are cumulative since some epoch (process start, VM
	// boot); Observe reports the per-second delta against the previous
	// sample at the same (resource, field) key.
	Counter
)

// Sample is one raw reading handed to Observe.
type Sample struct {
	Resource string // e.g. a VM id, container id, or "host"
	Field    string // e.g. "cpu_time_ns", "block_read:vda"
	Kind     Kind
	At       time.Time
	Value    float64
}

type cacheKey struct {
	resource string
	field    string
}

type cacheEntry struct {
	at    time.Time
	value float64
}
