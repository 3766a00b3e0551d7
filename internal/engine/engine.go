// Package engine implements the per-source scrape state machine:
// IDLE -> PLAN -> FETCH(fanout) -> PROCESS -> EMIT -> COMMIT.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/allaspectsdev/otel-api-scraper/internal/auth"
	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/allaspectsdev/otel-api-scraper/internal/gateway"
	"github.com/allaspectsdev/otel-api-scraper/internal/pipeline"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
	"github.com/allaspectsdev/otel-api-scraper/internal/telemetry"
)

// sourceRuntime bundles one source's precomputed dependencies: its own
// auth strategy, pipeline, and fetch-concurrency semaphore.
type sourceRuntime struct {
	cfg      config.SourceConfig
	auth     auth.Strategy
	pipeline *pipeline.Pipeline
	sem      *semaphore.Weighted
}

// Engine runs the scrape state machine for every configured source. One
// Engine instance serves the whole process; ScrapeSource is safe to call
// concurrently for distinct (or the same) source names.
type Engine struct {
	gateway *gateway.Gateway
	fpStore store.FingerprintStore
	state   store.StateStore
	emitter *telemetry.Emitter
	scraper config.ScraperSettings
	log     zerolog.Logger

	sources map[string]*sourceRuntime

	emitCtx    context.Context
	emitCancel context.CancelFunc
	emitWG     sync.WaitGroup
}

// New builds an Engine and precomputes each source's auth strategy,
// pipeline, and fetch semaphore.
func New(cfg *config.Config, gw *gateway.Gateway, fpStore store.FingerprintStore, state store.StateStore, emitter *telemetry.Emitter, log zerolog.Logger) (*Engine, error) {
	emitCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		gateway:    gw,
		fpStore:    fpStore,
		state:      state,
		emitter:    emitter,
		scraper:    cfg.Scraper,
		log:        log,
		sources:    make(map[string]*sourceRuntime, len(cfg.Sources)),
		emitCtx:    emitCtx,
		emitCancel: cancel,
	}

	defaultTTL := time.Duration(cfg.Scraper.FingerprintStore.DefaultTTLSeconds) * time.Second

	for _, src := range cfg.Sources {
		strategy, err := auth.New(src.Auth)
		if err != nil {
			return nil, err
		}

		concurrency := src.Scrape.MaxConcurrency
		if concurrency <= 0 || concurrency > cfg.Scraper.DefaultSourceConcurrency {
			concurrency = cfg.Scraper.DefaultSourceConcurrency
		}

		e.sources[src.Name] = &sourceRuntime{
			cfg:      src,
			auth:     strategy,
			pipeline: pipeline.New(src.Name, src.Filters, src.DeltaDetection, fpStore, defaultTTL),
			sem:      semaphore.NewWeighted(int64(concurrency)),
		}
	}
	return e, nil
}

// SourceNames returns every configured source name, for the scheduler and
// admin API.
func (e *Engine) SourceNames() []string {
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	return names
}

// SourceConfig returns the configuration for name, for the admin API.
func (e *Engine) SourceConfig(name string) (config.SourceConfig, bool) {
	sr, ok := e.sources[name]
	if !ok {
		return config.SourceConfig{}, false
	}
	return sr.cfg, true
}

var errUnknownSource = fmt.Errorf("unknown source")

// IsUnknownSource reports whether err is the "no such configured source"
// sentinel ScrapeSource returns for a bad name.
func IsUnknownSource(err error) bool { return err == errUnknownSource }

// ScrapeSource runs one full tick for the named source: PLAN, FETCH,
// PROCESS, EMIT, COMMIT. It never panics and never returns an error for
// anything that happens mid-tick — window failures are logged and folded
// into self-telemetry, and the watermark simply isn't advanced. The only
// error it can return is "no such source", for callers (the admin API)
// that need to distinguish a 404.
func (e *Engine) ScrapeSource(ctx context.Context, name string) error {
	sr, ok := e.sources[name]
	if !ok {
		return errUnknownSource
	}

	tickStart := time.Now().UTC()
	tickID := uuid.NewString()
	log := e.log.With().Str("source", name).Str("tick_id", tickID).Logger()

	apiType := "instant"
	if sr.cfg.Scrape.Type == "range" {
		apiType = "range"
	}

	lastSuccess, hasLastSuccess, err := e.state.LastSuccess(name)
	if err != nil {
		log.Error().Err(err).Msg("state store unavailable, skipping tick")
		return nil
	}

	plan, err := planWindows(sr.cfg, sr.cfg.Frequency, tickStart, lastSuccess, hasLastSuccess)
	if err != nil {
		log.Error().Err(err).Msg("window planning failed")
		return nil
	}
	if plan.skip {
		if err := e.state.SetLastSuccess(name, plan.watermark); err != nil {
			log.Error().Err(err).Msg("failed to persist first-scrape watermark")
		}
		return nil
	}

	log.Debug().Int("windows", len(plan.windows)).Msg("tick planned")

	results := e.fetchWindows(ctx, sr, plan.windows)

	tickErrored := false
	totalRecords, dedupeHits, dedupeMisses, dedupeTotal := 0, 0, 0, 0

	for _, res := range results {
		if res.err != nil {
			tickErrored = true
			logWindowError(log, res.err)
			continue
		}

		survivors, err := sr.pipeline.Run(res.records)
		if err != nil {
			tickErrored = true
			logWindowError(log, err)
			continue
		}
		stats := sr.pipeline.LastStats()
		dedupeHits += stats.Hits
		dedupeMisses += stats.Misses
		dedupeTotal += stats.Total
		totalRecords += len(survivors)

		if len(survivors) > 0 {
			e.emitBatch(sr, res.rawPayload, survivors)
		}
	}

	status := "success"
	if tickErrored {
		status = "error"
	} else {
		if err := e.state.SetLastSuccess(name, tickStart); err != nil {
			log.Error().Err(err).Msg("failed to commit watermark")
		}
	}

	e.emitter.RecordRun(ctx, telemetry.RunResult{
		Source:          name,
		Status:          status,
		APIType:         apiType,
		DurationSeconds: time.Since(tickStart).Seconds(),
		RecordsEmitted:  totalRecords,
		DedupeHits:      dedupeHits,
		DedupeMisses:    dedupeMisses,
		DedupeTotal:     dedupeTotal,
	})

	return nil
}

func logWindowError(log zerolog.Logger, err error) {
	if errs.Is(err, errs.KindShapeMismatch) {
		log.Error().Err(err).Msg("window failed")
		return
	}
	log.Warn().Err(err).Msg("window failed")
}

// emitBatch hands the batch off to the emitter as a detached goroutine
// tracked in emitWG, so metric/log export never blocks the next window or
// tick. Emitter errors are logged but never mark the tick errored.
func (e *Engine) emitBatch(sr *sourceRuntime, rawPayload interface{}, records []map[string]interface{}) {
	e.emitWG.Add(1)
	go func() {
		defer e.emitWG.Done()
		batch := telemetry.Batch{
			Source:            sr.cfg.Name,
			RawPayload:        rawPayload,
			Records:           records,
			GaugeReadings:     sr.cfg.GaugeReadings,
			CounterReadings:   sr.cfg.CounterReadings,
			HistogramReadings: sr.cfg.HistogramReadings,
			Attributes:        sr.cfg.Attributes,
			LogStatusField:    sr.cfg.LogStatusField,
			EmitLogs:          sr.cfg.EmitLogs,
		}
		if err := e.emitter.Emit(e.emitCtx, batch); err != nil {
			e.log.Warn().Err(errs.New(errs.KindExporterFailure, err)).Str("source", sr.cfg.Name).Msg("telemetry emit failed")
		}
	}()
}

// Shutdown cancels in-flight detached emit goroutines' context and waits
// (bounded by ctx) for them to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.emitCancel()
	done := make(chan struct{})
	go func() {
		e.emitWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
