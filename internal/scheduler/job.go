package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// job runs one source's periodic tick. coalesce and maxInstances are both
// implemented by a single weighted semaphore: a weight-1 semaphore coalesces
// overlapping ticks into the run already in flight (a tick that can't
// TryAcquire it is simply dropped), while a large semaphore lets ticks run
// concurrently.
type job struct {
	name         string
	interval     time.Duration
	misfireGrace time.Duration
	run          func(ctx context.Context)
	log          zerolog.Logger

	sem    *semaphore.Weighted
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newJob(name string, interval time.Duration, maxInstances int, misfireGrace time.Duration, run func(ctx context.Context), log zerolog.Logger) *job {
	return &job{
		name:         name,
		interval:     interval,
		misfireGrace: misfireGrace,
		run:          run,
		log:          log,
		sem:          semaphore.NewWeighted(int64(maxInstances)),
		stopCh:       make(chan struct{}),
	}
}

func (j *job) start(ctx context.Context) {
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *job) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case firedAt := <-ticker.C:
			j.handleTick(ctx, firedAt)
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *job) handleTick(ctx context.Context, firedAt time.Time) {
	if age := time.Since(firedAt); age > j.misfireGrace {
		j.log.Warn().Str("source", j.name).Dur("age", age).Msg("scheduler tick missed its misfire grace period, skipping")
		return
	}

	if !j.sem.TryAcquire(1) {
		j.log.Debug().Str("source", j.name).Msg("scheduler tick coalesced: previous run still in flight")
		return
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.sem.Release(1)
		j.run(ctx)
	}()
}

func (j *job) stop() {
	close(j.stopCh)
}
