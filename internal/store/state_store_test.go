package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStateStore(t *testing.T) *SQLiteStateStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	ss, err := NewSQLiteStateStore(path, 3, 0.01)
	if err != nil {
		t.Fatalf("NewSQLiteStateStore: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	return ss
}

func TestSQLiteStateStore_RoundTrip(t *testing.T) {
	ss := newTestSQLiteStateStore(t)

	if _, ok, err := ss.LastSuccess("src"); err != nil || ok {
		t.Fatalf("expected no watermark before first set, got ok=%v err=%v", ok, err)
	}

	want := time.Date(2026, 7, 1, 12, 30, 0, 0, time.UTC)
	if err := ss.SetLastSuccess("src", want); err != nil {
		t.Fatalf("SetLastSuccess: %v", err)
	}
	got, ok, err := ss.LastSuccess("src")
	if err != nil || !ok {
		t.Fatalf("LastSuccess: ok=%v err=%v", ok, err)
	}
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// Overwrite moves the watermark forward.
	later := want.Add(5 * time.Minute)
	if err := ss.SetLastSuccess("src", later); err != nil {
		t.Fatalf("SetLastSuccess: %v", err)
	}
	got, _, _ = ss.LastSuccess("src")
	if !got.Equal(later) {
		t.Fatalf("got %v, want %v", got, later)
	}
}

func TestSQLiteStateStore_MalformedTimestampReadsAsNoPriorRun(t *testing.T) {
	ss := newTestSQLiteStateStore(t)

	if _, err := ss.store.writer.Exec(
		`INSERT INTO last_success (source, timestamp) VALUES ('src', 'not-a-timestamp')`,
	); err != nil {
		t.Fatalf("seeding malformed row: %v", err)
	}

	got, ok, err := ss.LastSuccess("src")
	if err != nil {
		t.Fatalf("a malformed value must not be an error, got %v", err)
	}
	if ok || !got.IsZero() {
		t.Fatalf("expected (zero, false) for a malformed value, got (%v, %v)", got, ok)
	}
}

func TestMemoryStateStore_RoundTrip(t *testing.T) {
	ss := NewMemoryStateStore()

	if _, ok, _ := ss.LastSuccess("src"); ok {
		t.Fatal("expected no watermark before first set")
	}
	want := time.Now().UTC().Truncate(time.Second)
	if err := ss.SetLastSuccess("src", want); err != nil {
		t.Fatalf("SetLastSuccess: %v", err)
	}
	got, ok, _ := ss.LastSuccess("src")
	if !ok || !got.Equal(want) {
		t.Fatalf("got (%v, %v), want (%v, true)", got, ok, want)
	}
}
