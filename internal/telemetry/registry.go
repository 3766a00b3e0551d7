package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// instrumentKey identifies a counter or histogram by the source that owns
// it and the metric name configured for it.
type instrumentKey struct {
	source string
	name   string
}

// registry lazily creates and caches counters and histograms keyed by
// (source, metricName) so repeated ticks reuse the same instrument instead
// of re-registering one per batch.
type registry struct {
	mu         sync.Mutex
	counters   map[instrumentKey]metric.Float64Counter
	histograms map[instrumentKey]metric.Float64Histogram
}

func newRegistry() *registry {
	return &registry{
		counters:   make(map[instrumentKey]metric.Float64Counter),
		histograms: make(map[instrumentKey]metric.Float64Histogram),
	}
}

func (r *registry) counter(meter metric.Meter, source, name, unit string) (metric.Float64Counter, error) {
	key := instrumentKey{source, name}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c, nil
	}
	opts := []metric.Float64CounterOption{}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	c, err := meter.Float64Counter(name, opts...)
	if err != nil {
		return nil, err
	}
	r.counters[key] = c
	return c, nil
}

func (r *registry) histogram(meter metric.Meter, source, name, unit string, buckets []float64) (metric.Float64Histogram, error) {
	key := instrumentKey{source, name}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h, nil
	}
	opts := []metric.Float64HistogramOption{}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := meter.Float64Histogram(name, opts...)
	if err != nil {
		return nil, err
	}
	r.histograms[key] = h
	return h, nil
}
