package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStateStore is the default durable StateStore backend, sharing a
// SQLite database with a SQLiteFingerprintStore when pointed at the same
// path.
type SQLiteStateStore struct {
	store *Store
	retry lockRetry
}

// NewSQLiteStateStore opens (or shares) a SQLite database at path as a
// StateStore.
func NewSQLiteStateStore(path string, lockRetries int, lockBackoffSeconds float64) (*SQLiteStateStore, error) {
	s, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	return &SQLiteStateStore{store: s, retry: newLockRetry(lockRetries, lockBackoffSeconds)}, nil
}

// LastSuccess returns the last recorded successful watermark for source. A
// malformed stored timestamp reads as "no prior run", never an error.
func (s *SQLiteStateStore) LastSuccess(source string) (time.Time, bool, error) {
	var raw string
	err := s.store.reader.QueryRow(
		`SELECT timestamp FROM last_success WHERE source = ?`, source,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("state store: last success: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// SetLastSuccess records the last successful watermark for source.
func (s *SQLiteStateStore) SetLastSuccess(source string, t time.Time) error {
	err := s.retry.do(func() error {
		_, werr := s.store.writer.Exec(`
			INSERT INTO last_success (source, timestamp) VALUES (?, ?)
			ON CONFLICT(source) DO UPDATE SET timestamp = excluded.timestamp`,
			source, t.UTC().Format(time.RFC3339),
		)
		return werr
	})
	if err != nil {
		return fmt.Errorf("state store: set last success: %w", err)
	}
	return nil
}

// Close releases the underlying database handles.
func (s *SQLiteStateStore) Close() error {
	return s.store.Close()
}
