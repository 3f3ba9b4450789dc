package metrics

import "sync"

// Engine is the last-sample cache and rate computation core. Zero value is
// not usable; construct with NewEngine.
type Engine struct {
	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewEngine constructs an empty rate engine.
func NewEngine() *Engine {
	return &Engine{cache: make(map[cacheKey]cacheEntry)}
}

// Observe records sample and returns the rated value to publish.
//
// For a Gauge sample, rated is always sample.Value and ok is always true.
//
// For a Counter sample, the first observation at a given (resource, field)
// has no prior sample to difference against, so ok is false and no value
// is published that cycle (§4.C: "first-cycle-zero semantics" — silence,
// not a misleading zero rate). Every subsequent observation computes
// (value-prev)/(at-prev) in value-per-second. A value that drops below the
// previous sample is treated as a counter reset (the backend restarted, or
// wrapped) and resets the cache to the new sample without publishing a
// rate, rather than reporting a nonsensical negative rate.
func (e *Engine) Observe(s Sample) (rated float64, ok bool) {
	if s.Kind == Gauge {
		return s.Value, true
	}

	key := cacheKey{resource: s.Resource, field: s.Field}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, found := e.cache[key]
	e.cache[key] = cacheEntry{at: s.At, value: s.Value}

	if !found {
		return 0, false
	}
	if s.Value < prev.value {
		// Counter reset: suppress this cycle's rate, start fresh from here.
		return 0, false
	}
	elapsed := s.At.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return (s.Value - prev.value) / elapsed, true
}

// Forget drops any cached state for resource, e.g. once a VM is deleted so
// a later reused id never differences against stale counters.
func (e *Engine) Forget(resource string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.cache {
		if k.resource == resource {
			delete(e.cache, k)
		}
	}
}
