package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// gaugeObservation is one (value, attributes) pair cached for an
// observable gauge's next OTLP collection callback.
type gaugeObservation struct {
	value float64
	attrs []attribute.KeyValue
}

// gaugeState holds one gauge's latest observation set. Each scrape
// REPLACES the set (not accumulated) via an atomically-swapped immutable
// slice reference, so the exporter's collection callback never observes a
// partially-written cache.
type gaugeState struct {
	observations atomic.Pointer[[]gaugeObservation]
}

func (g *gaugeState) set(obs []gaugeObservation) {
	g.observations.Store(&obs)
}

func (g *gaugeState) observe(_ context.Context, o metric.Float64Observer) error {
	p := g.observations.Load()
	if p == nil {
		return nil
	}
	for _, ob := range *p {
		o.Observe(ob.value, metric.WithAttributes(ob.attrs...))
	}
	return nil
}

// gaugeRegistry lazily registers one observable gauge instrument per
// (source, metricName), each backed by its own gaugeState cache.
type gaugeRegistry struct {
	mu     sync.Mutex
	states map[instrumentKey]*gaugeState
}

func newGaugeRegistry() *gaugeRegistry {
	return &gaugeRegistry{states: make(map[instrumentKey]*gaugeState)}
}

// set resolves (registering on first use) the gauge for (source, name) and
// replaces its cached observation set.
func (r *gaugeRegistry) set(meter metric.Meter, source, name, unit string, obs []gaugeObservation) error {
	key := instrumentKey{source, name}

	r.mu.Lock()
	state, ok := r.states[key]
	if !ok {
		state = &gaugeState{}
		opts := []metric.Float64ObservableGaugeOption{metric.WithFloat64Callback(state.observe)}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		if _, err := meter.Float64ObservableGauge(name, opts...); err != nil {
			r.mu.Unlock()
			return err
		}
		r.states[key] = state
	}
	r.mu.Unlock()

	state.set(obs)
	return nil
}
