package volumes

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments for volume operations,
// registered against a shared meter the same way every
// subsystem's metrics.go does (lib/instances/metrics.go, lib/network/metrics.go).
type Metrics struct {
	createDuration metric.Float64Histogram
}

func newVolumeMetrics(meter metric.Meter, m *manager) (*Metrics, error) {
	createDuration, err := meter.Float64Histogram(
		"horcrux_volumes_create_duration_seconds",
		metric.WithDescription("Time to create a volume"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	volumesTotal, err := meter.Int64ObservableGauge(
		"horcrux_volumes_total",
		metric.WithDescription("Total number of disk volumes"),
	)
	if err != nil {
		return nil, err
	}

	allocatedBytes, err := meter.Int64ObservableGauge(
		"horcrux_volumes_allocated_bytes",
		metric.WithDescription("Total provisioned volume size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	usedBytes, err := meter.Int64ObservableGauge(
		"horcrux_volumes_used_bytes",
		metric.WithDescription("Actual disk space consumed by volumes in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			volumes, err := m.ListVolumes(ctx)
			if err != nil {
				return nil
			}
			o.ObserveInt64(volumesTotal, int64(len(volumes)))

			var totalAllocated, totalUsed int64
			for _, vol := range volumes {
				totalAllocated += vol.SizeBytes
				pool, backend, err := m.resolvePool(ctx, vol.PoolID)
				if err != nil {
					continue
				}
				if used, err := backend.UsedBytes(ctx, *pool, vol.Locator); err == nil {
					totalUsed += used
				}
			}
			o.ObserveInt64(allocatedBytes, totalAllocated)
			o.ObserveInt64(usedBytes, totalUsed)
			return nil
		},
		volumesTotal, allocatedBytes, usedBytes,
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{createDuration: createDuration}, nil
}

func (m *manager) recordCreateDuration(ctx context.Context, start time.Time, status string) {
	if m.metrics == nil {
		return
	}
	m.metrics.createDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}
