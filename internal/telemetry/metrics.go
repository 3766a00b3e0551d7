package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/extract"
)

// Batch is one window's raw payload paired with its processed records,
// handed to the emitter per the engine's telemetry contract: $root.*
// mappings resolve against rawPayload, all other dataKey mappings resolve
// against the individual record.
type Batch struct {
	Source     string
	RawPayload interface{}
	Records    []map[string]interface{}

	GaugeReadings     []config.GaugeReading
	CounterReadings   []config.CounterReading
	HistogramReadings []config.HistogramReading
	Attributes        []config.AttributeConfig
	LogStatusField    *config.LogStatusField
	EmitLogs          bool
}

// Emit resolves and records every gauge/counter/histogram/attribute-metric
// mapping for one batch, then (if configured) emits one log record per
// surviving record. Force-flushes both providers before returning so a
// crash between ticks never silently loses a completed batch.
func (e *Emitter) Emit(ctx context.Context, b Batch) error {
	if err := e.emitGauges(b); err != nil {
		return err
	}
	if err := e.emitCounters(ctx, b); err != nil {
		return err
	}
	if err := e.emitHistograms(ctx, b); err != nil {
		return err
	}
	if err := e.emitAttributeMetrics(ctx, b); err != nil {
		return err
	}
	if b.EmitLogs {
		e.emitLogs(ctx, b)
	}

	if e.dryRun {
		e.log.Info().
			Str("source", b.Source).
			Int("records", len(b.Records)).
			Int("gauges", len(b.GaugeReadings)).
			Int("counters", len(b.CounterReadings)).
			Int("histograms", len(b.HistogramReadings)).
			Msg("dry-run: telemetry batch summary")
	}

	return e.ForceFlush(ctx)
}

func (e *Emitter) emitGauges(b Batch) error {
	for _, g := range b.GaugeReadings {
		var obs []gaugeObservation
		for _, r := range b.Records {
			value, ok, err := resolveValue(r, b.RawPayload, g.DataKey, g.FixedValue)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			obs = append(obs, gaugeObservation{value: value, attrs: resolveAttributes(b, r)})
		}
		if err := e.gauges.set(e.meter, b.Source, g.Name, g.Unit, obs); err != nil {
			return fmt.Errorf("telemetry: register gauge %q: %w", g.Name, err)
		}
	}
	return nil
}

func (e *Emitter) emitCounters(ctx context.Context, b Batch) error {
	for _, c := range b.CounterReadings {
		counter, err := e.instruments.counter(e.meter, b.Source, c.Name, c.Unit)
		if err != nil {
			return fmt.Errorf("telemetry: register counter %q: %w", c.Name, err)
		}
		for _, r := range b.Records {
			amount, ok, err := resolveValue(r, b.RawPayload, c.DataKey, c.FixedValue)
			if err != nil {
				return err
			}
			if !ok {
				amount = 1 // defaulting to 1 on parse failure
			}
			counter.Add(ctx, amount, metric.WithAttributes(resolveAttributes(b, r)...))
		}
	}
	return nil
}

func (e *Emitter) emitHistograms(ctx context.Context, b Batch) error {
	for _, h := range b.HistogramReadings {
		hist, err := e.instruments.histogram(e.meter, b.Source, h.Name, h.Unit, h.Buckets)
		if err != nil {
			return fmt.Errorf("telemetry: register histogram %q: %w", h.Name, err)
		}
		for _, r := range b.Records {
			value, ok, err := resolveValue(r, b.RawPayload, h.DataKey, h.FixedValue)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			hist.Record(ctx, value, metric.WithAttributes(resolveAttributes(b, r)...))
		}
	}
	return nil
}

func (e *Emitter) emitAttributeMetrics(ctx context.Context, b Batch) error {
	for _, a := range b.Attributes {
		if a.AsMetric == nil {
			continue
		}
		counter, err := e.instruments.counter(e.meter, b.Source, a.AsMetric.MetricName, a.AsMetric.Unit)
		if err != nil {
			return fmt.Errorf("telemetry: register attribute metric %q: %w", a.AsMetric.MetricName, err)
		}
		for _, r := range b.Records {
			v, err := extract.LookupPath(r, b.RawPayload, a.DataKey)
			if err != nil {
				return err
			}
			if v == nil {
				continue
			}
			amount, ok := a.AsMetric.ValueMapping[fmt.Sprintf("%v", v)]
			if !ok {
				continue
			}
			counter.Add(ctx, amount, metric.WithAttributes(resolveAttributes(b, r)...))
		}
	}
	return nil
}

// resolveValue resolves a fixedValue-or-dataKey numeric reading. ok is
// false when the record carries no usable value (missing field or
// non-numeric), which callers treat as "skip" except where the spec calls
// for a counter default of 1.
func resolveValue(record map[string]interface{}, root interface{}, dataKey string, fixed *float64) (float64, bool, error) {
	if fixed != nil {
		return *fixed, true, nil
	}
	if dataKey == "" {
		return 0, false, nil
	}
	v, err := extract.LookupPath(record, root, dataKey)
	if err != nil {
		return 0, false, err
	}
	return toFloat(v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// resolveAttributes builds the {source, ...configured attrs} attribute set
// for one record's datapoint. None-valued attributes are omitted.
func resolveAttributes(b Batch, record map[string]interface{}) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("source", b.Source)}
	for _, a := range b.Attributes {
		v, err := extract.LookupPath(record, b.RawPayload, a.DataKey)
		if err != nil || v == nil {
			continue
		}
		attrs = append(attrs, attribute.String(a.Name, fmt.Sprintf("%v", v)))
	}
	return attrs
}
