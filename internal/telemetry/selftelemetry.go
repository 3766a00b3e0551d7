package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// selfInstruments are the process's own health/throughput metrics,
// reported by the runner and engine once per tick and cleanup pass.
// Suppressed entirely (never constructed) when enableSelfTelemetry is
// false or dryRun is true — dry-run suppresses ALL self-instrument
// emission uniformly, including the dedup/cleanup counters.
type selfInstruments struct {
	runs           metric.Int64Counter
	recordsEmitted metric.Int64Counter
	dedupeHits     metric.Int64Counter
	dedupeMisses   metric.Int64Counter
	dedupeTotal    metric.Int64Counter
	cleanupItems   metric.Int64Counter

	runDuration     metric.Float64Histogram
	cleanupDuration metric.Float64Histogram

	lastRunDuration     *gaugeValue
	lastRecordsEmitted  *gaugeValue
	dedupeHitRate       *gaugeValue
	cleanupLastDuration *gaugeValue
	cleanupLastItems    *gaugeValue
}

// gaugeValue is a single atomically-updated scalar backing an observable
// gauge, for the "last value" self-telemetry gauges that carry one number
// rather than a per-attribute set.
type gaugeValue struct {
	mu    sync.Mutex
	value float64
	attrs []attribute.KeyValue
}

func (g *gaugeValue) set(value float64, attrs []attribute.KeyValue) {
	g.mu.Lock()
	g.value = value
	g.attrs = attrs
	g.mu.Unlock()
}

func (g *gaugeValue) observe(_ context.Context, o metric.Float64Observer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attrs == nil {
		return nil
	}
	o.Observe(g.value, metric.WithAttributes(g.attrs...))
	return nil
}

func newSelfInstruments(meter metric.Meter) (*selfInstruments, error) {
	s := &selfInstruments{
		lastRunDuration:     &gaugeValue{},
		lastRecordsEmitted:  &gaugeValue{},
		dedupeHitRate:       &gaugeValue{},
		cleanupLastDuration: &gaugeValue{},
		cleanupLastItems:    &gaugeValue{},
	}

	var err error
	if s.runs, err = meter.Int64Counter("scraper_runs_total"); err != nil {
		return nil, err
	}
	if s.recordsEmitted, err = meter.Int64Counter("scraper_records_emitted_total"); err != nil {
		return nil, err
	}
	if s.dedupeHits, err = meter.Int64Counter("scraper_dedupe_hits_total"); err != nil {
		return nil, err
	}
	if s.dedupeMisses, err = meter.Int64Counter("scraper_dedupe_misses_total"); err != nil {
		return nil, err
	}
	if s.dedupeTotal, err = meter.Int64Counter("scraper_dedupe_total_total"); err != nil {
		return nil, err
	}
	if s.cleanupItems, err = meter.Int64Counter("scraper_cleanup_items_total"); err != nil {
		return nil, err
	}
	if s.runDuration, err = meter.Float64Histogram("scraper_run_duration_seconds"); err != nil {
		return nil, err
	}
	if s.cleanupDuration, err = meter.Float64Histogram("scraper_cleanup_duration_seconds"); err != nil {
		return nil, err
	}

	if _, err = meter.Float64ObservableGauge("scraper_last_run_duration_seconds", metric.WithFloat64Callback(s.lastRunDuration.observe)); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge("scraper_last_records_emitted", metric.WithFloat64Callback(s.lastRecordsEmitted.observe)); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge("scraper_dedupe_hit_rate", metric.WithFloat64Callback(s.dedupeHitRate.observe)); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge("scraper_cleanup_last_duration_seconds", metric.WithFloat64Callback(s.cleanupLastDuration.observe)); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge("scraper_cleanup_last_items", metric.WithFloat64Callback(s.cleanupLastItems.observe)); err != nil {
		return nil, err
	}
	return s, nil
}

// RunResult carries the per-tick numbers the engine reports after a
// source's scrape completes, win or lose.
type RunResult struct {
	Source          string
	Status          string // "success" | "error"
	APIType         string // "instant" | "range"
	DurationSeconds float64
	RecordsEmitted  int
	DedupeHits      int
	DedupeMisses    int
	DedupeTotal     int
}

// RecordRun reports one tick's self-telemetry. A no-op when self-telemetry
// is disabled or the emitter is in dry-run mode.
func (e *Emitter) RecordRun(ctx context.Context, r RunResult) {
	if e.self == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("source", r.Source),
		attribute.String("status", r.Status),
		attribute.String("api_type", r.APIType),
	}
	opt := metric.WithAttributes(attrs...)

	e.self.runs.Add(ctx, 1, opt)
	e.self.recordsEmitted.Add(ctx, int64(r.RecordsEmitted), opt)
	e.self.dedupeHits.Add(ctx, int64(r.DedupeHits), opt)
	e.self.dedupeMisses.Add(ctx, int64(r.DedupeMisses), opt)
	e.self.dedupeTotal.Add(ctx, int64(r.DedupeTotal), opt)
	e.self.runDuration.Record(ctx, r.DurationSeconds, opt)

	e.self.lastRunDuration.set(r.DurationSeconds, attrs)
	e.self.lastRecordsEmitted.set(float64(r.RecordsEmitted), attrs)
	hitRate := 0.0
	if r.DedupeTotal > 0 {
		hitRate = float64(r.DedupeHits) / float64(r.DedupeTotal)
	}
	e.self.dedupeHitRate.set(hitRate, attrs)
}

// CleanupResult carries the numbers from one periodic cleanup pass.
type CleanupResult struct {
	Job             string
	Backend         string
	DurationSeconds float64
	Items           int64
}

// RecordCleanup reports one cleanup pass's self-telemetry. A no-op when
// self-telemetry is disabled or the emitter is in dry-run mode.
func (e *Emitter) RecordCleanup(ctx context.Context, r CleanupResult) {
	if e.self == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("job", r.Job),
		attribute.String("backend", r.Backend),
	}
	opt := metric.WithAttributes(attrs...)

	e.self.cleanupItems.Add(ctx, r.Items, opt)
	e.self.cleanupDuration.Record(ctx, r.DurationSeconds, opt)

	e.self.cleanupLastDuration.set(r.DurationSeconds, attrs)
	e.self.cleanupLastItems.set(float64(r.Items), attrs)
}
