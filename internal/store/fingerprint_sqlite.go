package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteFingerprintStore is the default durable FingerprintStore backend.
type SQLiteFingerprintStore struct {
	store        *Store
	maxPerSource int
	defaultTTL   time.Duration
	retry        lockRetry
}

// NewSQLiteFingerprintStore opens (or shares) a SQLite database at path as a
// FingerprintStore, capped at maxEntriesPerSource rows per source. Write
// contention is retried up to lockRetries attempts with exponential backoff
// starting at lockBackoffSeconds.
func NewSQLiteFingerprintStore(path string, maxEntriesPerSource int, defaultTTL time.Duration, lockRetries int, lockBackoffSeconds float64) (*SQLiteFingerprintStore, error) {
	s, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("fingerprint store: %w", err)
	}
	return &SQLiteFingerprintStore{
		store:        s,
		maxPerSource: maxEntriesPerSource,
		defaultTTL:   defaultTTL,
		retry:        newLockRetry(lockRetries, lockBackoffSeconds),
	}, nil
}

// Contains reports whether (hash, source) has a live entry: one whose
// last_seen is within its stored ttl of now. An expired entry observed here
// is deleted inline rather than waiting for the next cleanup pass.
func (f *SQLiteFingerprintStore) Contains(source, hash string) (bool, error) {
	var lastSeen, ttl int64
	err := f.store.reader.QueryRow(
		`SELECT last_seen, ttl FROM fingerprints WHERE hash = ? AND source = ?`,
		hash, source,
	).Scan(&lastSeen, &ttl)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fingerprint store: contains: %w", err)
	}
	now := time.Now().UTC().Unix()
	if now-lastSeen > ttl {
		_ = f.retry.do(func() error {
			_, derr := f.store.writer.Exec(
				`DELETE FROM fingerprints WHERE hash = ? AND source = ?`, hash, source)
			return derr
		})
		return false, nil
	}
	return true, nil
}

// Touch inserts or updates the (hash, source) entry with last_seen=now and
// the given ttl; first_seen is set only on insert. After a successful touch,
// any per-source overflow past maxEntriesPerSource is evicted by ascending
// last_seen.
func (f *SQLiteFingerprintStore) Touch(source, hash string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = f.defaultTTL
	}
	now := time.Now().UTC().Unix()

	err := f.retry.do(func() error {
		_, werr := f.store.writer.Exec(`
			INSERT INTO fingerprints (hash, source, first_seen, last_seen, ttl)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(hash, source) DO UPDATE SET
				last_seen = excluded.last_seen,
				ttl = excluded.ttl`,
			hash, source, now, now, int64(ttl.Seconds()),
		)
		return werr
	})
	if err != nil {
		return fmt.Errorf("fingerprint store: touch: %w", err)
	}
	return f.evictOverCapacity(source)
}

// evictOverCapacity deletes the oldest-by-last_seen rows for source once its
// row count exceeds maxPerSource, in a single bounded statement.
func (f *SQLiteFingerprintStore) evictOverCapacity(source string) error {
	if f.maxPerSource <= 0 {
		return nil
	}
	err := f.retry.do(func() error {
		_, werr := f.store.writer.Exec(`
			DELETE FROM fingerprints
			WHERE source = ? AND hash IN (
				SELECT hash FROM fingerprints
				WHERE source = ?
				ORDER BY last_seen ASC
				LIMIT MAX(0, (SELECT COUNT(*) FROM fingerprints WHERE source = ?) - ?)
			)`,
			source, source, source, f.maxPerSource,
		)
		return werr
	})
	if err != nil {
		return fmt.Errorf("fingerprint store: evict over capacity: %w", err)
	}
	return nil
}

// Cleanup removes all rows whose last_seen + ttl has passed and returns the
// number of rows deleted.
func (f *SQLiteFingerprintStore) Cleanup() (int64, error) {
	now := time.Now().UTC().Unix()
	var removed int64
	err := f.retry.do(func() error {
		result, werr := f.store.writer.Exec(
			`DELETE FROM fingerprints WHERE last_seen + ttl < ?`, now)
		if werr != nil {
			return werr
		}
		removed, werr = result.RowsAffected()
		return werr
	})
	if err != nil {
		return 0, fmt.Errorf("fingerprint store: cleanup: %w", err)
	}
	return removed, nil
}

// CleanupOrphans removes fingerprint rows belonging to sources no longer
// present in activeSources, e.g. after a source is removed from config.
func (f *SQLiteFingerprintStore) CleanupOrphans(activeSources []string) (int64, error) {
	var query string
	var args []interface{}
	if len(activeSources) == 0 {
		query = `DELETE FROM fingerprints`
	} else {
		placeholders := make([]string, len(activeSources))
		args = make([]interface{}, len(activeSources))
		for i, s := range activeSources {
			placeholders[i] = "?"
			args[i] = s
		}
		query = fmt.Sprintf(
			`DELETE FROM fingerprints WHERE source NOT IN (%s)`,
			joinPlaceholders(placeholders),
		)
	}

	var removed int64
	err := f.retry.do(func() error {
		result, werr := f.store.writer.Exec(query, args...)
		if werr != nil {
			return werr
		}
		removed, werr = result.RowsAffected()
		return werr
	})
	if err != nil {
		return 0, fmt.Errorf("fingerprint store: cleanup orphans: %w", err)
	}
	return removed, nil
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// Close releases the underlying database handles.
func (f *SQLiteFingerprintStore) Close() error {
	return f.store.Close()
}
