package store

import (
	"math/rand"
	"strings"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// maxLockBackoff caps a single contention backoff sleep.
const maxLockBackoff = time.Second

// lockRetry bounds retries of a write that hit SQLite lock contention.
// Each attempt that fails with a busy/locked error sleeps an
// exponential-backoff-with-full-jitter delay before the next try. When the
// attempts are exhausted the last error is surfaced as a TRANSPORT_ERROR
// wrapping a STORE_CONTENTION, so callers upstream treat it like any other
// per-tick window failure.
type lockRetry struct {
	retries int
	backoff time.Duration
}

func newLockRetry(retries int, backoffSeconds float64) lockRetry {
	if retries <= 0 {
		retries = 1
	}
	backoff := time.Duration(backoffSeconds * float64(time.Second))
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return lockRetry{retries: retries, backoff: backoff}
}

func (r lockRetry) do(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.delayFor(attempt))
		}
		lastErr = fn()
		if lastErr == nil || !isLockContention(lastErr) {
			return lastErr
		}
	}
	return errs.TransportError(errs.New(errs.KindStoreContention, lastErr))
}

func (r lockRetry) delayFor(attempt int) time.Duration {
	backoff := r.backoff << uint(attempt-1)
	if backoff > maxLockBackoff || backoff <= 0 {
		backoff = maxLockBackoff
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}

// isLockContention matches the two ways modernc.org/sqlite reports a held
// write lock: SQLITE_BUSY and SQLITE_LOCKED, both surfaced as string codes
// in the driver's error text.
func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked")
}
