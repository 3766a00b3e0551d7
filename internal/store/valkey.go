package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Remote key layout:
//
//	fp:<source>:<hash>       string, value=RFC3339 touch time, TTL set
//	fp_index:<source>        sorted set, score=unix touch time, member=hash
//	last_success:<source>    string, RFC3339 watermark
//
// The per-source sorted index is what makes capacity trim and orphan
// cleanup possible without KEYS: expiry of the fp keys themselves is
// enforced natively by the server.
const (
	fpKeyPrefix          = "fp:"
	fpIndexPrefix        = "fp_index:"
	lastSuccessKeyPrefix = "last_success:"
)

func newValkeyClient(addr string, db int, password string, ssl bool) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	}
	if ssl {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey: ping %s: %w", addr, err)
	}
	return client, nil
}

// ValkeyFingerprintStore is the remote FingerprintStore backend, for
// deployments that share dedup state across multiple scraper instances.
type ValkeyFingerprintStore struct {
	client       *redis.Client
	ctx          context.Context
	maxPerSource int
}

// NewValkeyFingerprintStore dials a Valkey/Redis-compatible server at addr
// and verifies connectivity with a PING.
func NewValkeyFingerprintStore(addr string, db int, password string, ssl bool, maxEntriesPerSource int) (*ValkeyFingerprintStore, error) {
	client, err := newValkeyClient(addr, db, password, ssl)
	if err != nil {
		return nil, fmt.Errorf("valkey fingerprint store: %w", err)
	}
	return &ValkeyFingerprintStore{
		client:       client,
		ctx:          context.Background(),
		maxPerSource: maxEntriesPerSource,
	}, nil
}

func fpKey(source, hash string) string {
	return fpKeyPrefix + source + ":" + hash
}

func fpIndexKey(source string) string {
	return fpIndexPrefix + source
}

func (v *ValkeyFingerprintStore) Contains(source, hash string) (bool, error) {
	n, err := v.client.Exists(v.ctx, fpKey(source, hash)).Result()
	if err != nil {
		return false, fmt.Errorf("valkey fingerprint store: contains: %w", err)
	}
	return n > 0, nil
}

// Touch sets the fp key with the given TTL and records the sighting in the
// source's sorted index, then trims any capacity overflow by evicting the
// oldest-scored index members and their fp keys.
func (v *ValkeyFingerprintStore) Touch(source, hash string, ttl time.Duration) error {
	now := time.Now().UTC()

	pipe := v.client.TxPipeline()
	pipe.Set(v.ctx, fpKey(source, hash), now.Format(time.RFC3339), ttl)
	pipe.ZAdd(v.ctx, fpIndexKey(source), redis.Z{Score: float64(now.Unix()), Member: hash})
	if _, err := pipe.Exec(v.ctx); err != nil {
		return fmt.Errorf("valkey fingerprint store: touch: %w", err)
	}
	return v.trimOverCapacity(source)
}

func (v *ValkeyFingerprintStore) trimOverCapacity(source string) error {
	if v.maxPerSource <= 0 {
		return nil
	}
	indexKey := fpIndexKey(source)
	count, err := v.client.ZCard(v.ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("valkey fingerprint store: trim zcard: %w", err)
	}
	overflow := count - int64(v.maxPerSource)
	if overflow <= 0 {
		return nil
	}
	evicted, err := v.client.ZRange(v.ctx, indexKey, 0, overflow-1).Result()
	if err != nil {
		return fmt.Errorf("valkey fingerprint store: trim zrange: %w", err)
	}
	if len(evicted) == 0 {
		return nil
	}
	keys := make([]string, len(evicted))
	members := make([]interface{}, len(evicted))
	for i, h := range evicted {
		keys[i] = fpKey(source, h)
		members[i] = h
	}
	pipe := v.client.TxPipeline()
	pipe.Del(v.ctx, keys...)
	pipe.ZRem(v.ctx, indexKey, members...)
	if _, err := pipe.Exec(v.ctx); err != nil {
		return fmt.Errorf("valkey fingerprint store: trim: %w", err)
	}
	return nil
}

// Cleanup walks every source's index and removes members whose fp key has
// already been expired by the server, returning the number of index members
// dropped. The fp keys themselves never need sweeping.
func (v *ValkeyFingerprintStore) Cleanup() (int64, error) {
	var removed int64
	err := v.scanIndexes(func(indexKey, source string) error {
		members, err := v.client.ZRange(v.ctx, indexKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("zrange %s: %w", indexKey, err)
		}
		var stale []interface{}
		for _, hash := range members {
			n, err := v.client.Exists(v.ctx, fpKey(source, hash)).Result()
			if err != nil {
				return fmt.Errorf("exists: %w", err)
			}
			if n == 0 {
				stale = append(stale, hash)
			}
		}
		if len(stale) > 0 {
			n, err := v.client.ZRem(v.ctx, indexKey, stale...).Result()
			if err != nil {
				return fmt.Errorf("zrem %s: %w", indexKey, err)
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("valkey fingerprint store: cleanup: %w", err)
	}
	return removed, nil
}

// CleanupOrphans derives the live source set by scanning fp_index:* rather
// than any in-process bookkeeping, so a freshly restarted instance still
// cleans up sources removed from its config.
func (v *ValkeyFingerprintStore) CleanupOrphans(activeSources []string) (int64, error) {
	active := make(map[string]struct{}, len(activeSources))
	for _, s := range activeSources {
		active[s] = struct{}{}
	}

	var removed int64
	err := v.scanIndexes(func(indexKey, source string) error {
		if _, ok := active[source]; ok {
			return nil
		}
		members, err := v.client.ZRange(v.ctx, indexKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("zrange %s: %w", indexKey, err)
		}
		keys := make([]string, 0, len(members)+1)
		for _, hash := range members {
			keys = append(keys, fpKey(source, hash))
		}
		keys = append(keys, indexKey)
		if _, err := v.client.Del(v.ctx, keys...).Result(); err != nil {
			return fmt.Errorf("del: %w", err)
		}
		removed += int64(len(members))
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("valkey fingerprint store: cleanup orphans: %w", err)
	}
	return removed, nil
}

// scanIndexes SCANs (never KEYS) the fp_index:* pattern and invokes fn for
// each per-source index found.
func (v *ValkeyFingerprintStore) scanIndexes(fn func(indexKey, source string) error) error {
	var cursor uint64
	for {
		keys, next, err := v.client.Scan(v.ctx, cursor, fpIndexPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		for _, k := range keys {
			if err := fn(k, strings.TrimPrefix(k, fpIndexPrefix)); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (v *ValkeyFingerprintStore) Close() error {
	return v.client.Close()
}

// ValkeyStateStore is the remote StateStore backend.
type ValkeyStateStore struct {
	client *redis.Client
	ctx    context.Context
}

// NewValkeyStateStore dials a Valkey/Redis-compatible server at addr.
func NewValkeyStateStore(addr string, db int, password string, ssl bool) (*ValkeyStateStore, error) {
	client, err := newValkeyClient(addr, db, password, ssl)
	if err != nil {
		return nil, fmt.Errorf("valkey state store: %w", err)
	}
	return &ValkeyStateStore{client: client, ctx: context.Background()}, nil
}

// LastSuccess returns the stored watermark for source. A malformed stored
// value reads as "no prior run", never an error.
func (v *ValkeyStateStore) LastSuccess(source string) (time.Time, bool, error) {
	raw, err := v.client.Get(v.ctx, lastSuccessKeyPrefix+source).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("valkey state store: last success: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (v *ValkeyStateStore) SetLastSuccess(source string, t time.Time) error {
	if err := v.client.Set(v.ctx, lastSuccessKeyPrefix+source, t.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("valkey state store: set last success: %w", err)
	}
	return nil
}

func (v *ValkeyStateStore) Close() error {
	return v.client.Close()
}
