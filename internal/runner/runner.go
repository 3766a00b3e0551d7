// Package runner wires every other component together into one running
// process: the stores, gateway, emitter, engine, and scheduler, plus the
// background cleanup loop and startup/shutdown sequencing.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/engine"
	"github.com/allaspectsdev/otel-api-scraper/internal/gateway"
	"github.com/allaspectsdev/otel-api-scraper/internal/scheduler"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
	"github.com/allaspectsdev/otel-api-scraper/internal/telemetry"
)

// Runner owns the full set of live components for one process lifetime.
type Runner struct {
	cfg *config.Config
	log zerolog.Logger

	fpStore store.FingerprintStore
	state   store.StateStore
	gateway *gateway.Gateway
	emitter *telemetry.Emitter
	engine  *engine.Engine
	sched   *scheduler.Scheduler

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}
}

// New constructs every component from cfg but does not start anything.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Runner, error) {
	fpStore := newFingerprintStore(cfg.Scraper.FingerprintStore, log)
	state := newStateStore(cfg.Scraper.FingerprintStore, log)

	gw := gateway.New(cfg.Scraper.MaxGlobalConcurrency, cfg.Scraper.EnforceTLS)

	emitter, err := telemetry.New(ctx, cfg.Scraper, log)
	if err != nil {
		fpStore.Close()
		state.Close()
		gw.Close()
		return nil, err
	}

	eng, err := engine.New(cfg, gw, fpStore, state, emitter, log)
	if err != nil {
		fpStore.Close()
		state.Close()
		gw.Close()
		emitter.Shutdown(ctx)
		return nil, err
	}

	sched, err := scheduler.New(cfg, eng, log)
	if err != nil {
		fpStore.Close()
		state.Close()
		gw.Close()
		emitter.Shutdown(ctx)
		return nil, err
	}

	return &Runner{
		cfg:     cfg,
		log:     log,
		fpStore: fpStore,
		state:   state,
		gateway: gw,
		emitter: emitter,
		engine:  eng,
		sched:   sched,
	}, nil
}

// Engine exposes the underlying engine, for the admin API to call
// ScrapeSource and read source configuration.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// Start runs startup orphan cleanup, launches the scheduler and the
// periodic cleanup loop, and kicks every source once.
func (r *Runner) Start(ctx context.Context) {
	if _, err := r.fpStore.CleanupOrphans(r.engine.SourceNames()); err != nil {
		r.log.Warn().Err(err).Msg("startup orphan cleanup failed")
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	r.cleanupCancel = cancel
	r.cleanupDone = make(chan struct{})
	go r.runCleanupLoop(cleanupCtx)

	r.sched.Start(ctx)
	r.sched.RunAllOnce(ctx)
}

// RunOnce scrapes every source exactly once without starting the scheduler,
// for one-shot invocations. Orphan cleanup still runs first so a one-shot
// pass leaves the fingerprint store consistent with the loaded config.
func (r *Runner) RunOnce(ctx context.Context) {
	if _, err := r.fpStore.CleanupOrphans(r.engine.SourceNames()); err != nil {
		r.log.Warn().Err(err).Msg("orphan cleanup failed")
	}
	r.sched.RunAllOnce(ctx)
}

func (r *Runner) runCleanupLoop(ctx context.Context) {
	defer close(r.cleanupDone)

	interval := time.Duration(r.cfg.Scraper.FingerprintStore.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runCleanupOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) runCleanupOnce(ctx context.Context) {
	start := time.Now()
	items, err := r.fpStore.Cleanup()
	duration := time.Since(start).Seconds()
	if err != nil {
		r.log.Error().Err(err).Msg("periodic cleanup failed")
		return
	}
	r.emitter.RecordCleanup(ctx, telemetry.CleanupResult{
		Job:             "fingerprint_cleanup",
		Backend:         r.cfg.Scraper.FingerprintStore.Backend,
		DurationSeconds: duration,
		Items:           items,
	})
}

// Shutdown stops the cleanup loop and scheduler (honoring
// terminateGracefully), closes the gateway, flushes and shuts down the
// emitter, and closes both stores. Errors are collected but every step
// still runs.
func (r *Runner) Shutdown(ctx context.Context) error {
	if r.cleanupCancel != nil {
		r.cleanupCancel()
		select {
		case <-r.cleanupDone:
		case <-ctx.Done():
		}
	}

	var errOnce sync.Once
	var firstErr error
	record := func(err error) {
		if err != nil {
			errOnce.Do(func() { firstErr = err })
		}
	}

	record(r.sched.Shutdown(ctx, r.cfg.Scraper.TerminateGracefully))
	record(r.engine.Shutdown(ctx))
	record(r.gateway.Close())
	record(r.emitter.Shutdown(ctx))
	record(r.fpStore.Close())
	record(r.state.Close())

	return firstErr
}
