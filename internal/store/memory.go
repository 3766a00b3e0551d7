package store

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// unboundedLRUSize is used for the rare maxEntriesPerSource<=0 ("no cap")
// configuration, since the underlying LRU requires a positive size. It is
// large enough that no real deployment will ever hit it.
const unboundedLRUSize = 1 << 24

type memoryEntry struct {
	lastSeen  time.Time
	expiresAt time.Time
}

// MemoryFingerprintStore is the in-process fallback FingerprintStore, used
// when the configured durable backend cannot be reached at startup. State
// does not survive a process restart.
//
// Each source gets its own bounded LRU cache sized to maxEntriesPerSource.
// Touch uses Add, which marks an entry most-recently-used; Contains uses
// Peek, which does not. Since only Touch ever bumps recency, the LRU's
// least-recently-used order is exactly the store contract's ascending
// lastSeen order, so the library's built-in capacity eviction already
// satisfies the "evict oldest lastSeen" invariant without extra bookkeeping.
type MemoryFingerprintStore struct {
	mu      sync.Mutex
	buckets map[string]*lru.Cache[string, memoryEntry]
	maxPer  int
	offset  time.Duration // test-only clock skew, see Advance
}

// NewMemoryFingerprintStore creates an in-memory FingerprintStore.
func NewMemoryFingerprintStore(maxEntriesPerSource int) *MemoryFingerprintStore {
	return &MemoryFingerprintStore{
		buckets: make(map[string]*lru.Cache[string, memoryEntry]),
		maxPer:  maxEntriesPerSource,
	}
}

func (m *MemoryFingerprintStore) now() time.Time {
	return time.Now().UTC().Add(m.offset)
}

// Advance shifts this store's internal clock forward by d. It exists so
// tests can exercise TTL expiry without sleeping; production callers never
// use it.
func (m *MemoryFingerprintStore) Advance(d time.Duration) {
	m.mu.Lock()
	m.offset += d
	m.mu.Unlock()
}

func (m *MemoryFingerprintStore) bucketSize() int {
	if m.maxPer > 0 {
		return m.maxPer
	}
	return unboundedLRUSize
}

func (m *MemoryFingerprintStore) bucket(source string) *lru.Cache[string, memoryEntry] {
	b, ok := m.buckets[source]
	if !ok {
		b, _ = lru.New[string, memoryEntry](m.bucketSize())
		m.buckets[source] = b
	}
	return b
}

func (m *MemoryFingerprintStore) Contains(source, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[source]
	if !ok {
		return false, nil
	}
	e, ok := b.Peek(hash)
	if !ok {
		return false, nil
	}
	return m.now().Before(e.expiresAt), nil
}

func (m *MemoryFingerprintStore) Touch(source, hash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.bucket(source).Add(hash, memoryEntry{lastSeen: now, expiresAt: now.Add(ttl)})
	return nil
}

func (m *MemoryFingerprintStore) Cleanup() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var removed int64
	for _, b := range m.buckets {
		for _, h := range b.Keys() {
			e, ok := b.Peek(h)
			if ok && now.After(e.expiresAt) {
				b.Remove(h)
				removed++
			}
		}
	}
	return removed, nil
}

func (m *MemoryFingerprintStore) CleanupOrphans(activeSources []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make(map[string]struct{}, len(activeSources))
	for _, s := range activeSources {
		active[s] = struct{}{}
	}
	var removed int64
	for source, b := range m.buckets {
		if _, ok := active[source]; !ok {
			removed += int64(b.Len())
			delete(m.buckets, source)
		}
	}
	return removed, nil
}

func (m *MemoryFingerprintStore) Close() error { return nil }

// MemoryStateStore is the in-process fallback StateStore.
type MemoryStateStore struct {
	mu    sync.Mutex
	state map[string]time.Time
}

// NewMemoryStateStore creates an in-memory StateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{state: make(map[string]time.Time)}
}

func (m *MemoryStateStore) LastSuccess(source string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state[source]
	return t, ok, nil
}

func (m *MemoryStateStore) SetLastSuccess(source string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[source] = t.UTC()
	return nil
}

func (m *MemoryStateStore) Close() error { return nil }
