package pipeline

import (
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
)

// applyDedup consults fs for each record's fingerprint, dropping records
// already seen within their TTL and touching the store for survivors. It
// returns the surviving records alongside the {hits,misses,total} stats the
// engine forwards to self-telemetry.
func applyDedup(fs store.FingerprintStore, source string, records []Record, cfg config.DeltaDetectionConfig, ttl time.Duration) ([]Record, Stats, error) {
	var stats Stats
	kept := make([]Record, 0, len(records))

	for _, r := range records {
		hash, err := fingerprint(source, r, cfg.FingerprintMode, cfg.FingerprintKeys)
		if err != nil {
			return nil, stats, err
		}

		seen, err := fs.Contains(source, hash)
		if err != nil {
			return nil, stats, err
		}
		stats.Total++
		if seen {
			stats.Hits++
			continue
		}
		stats.Misses++
		if err := fs.Touch(source, hash, ttl); err != nil {
			return nil, stats, err
		}
		kept = append(kept, r)
	}
	return kept, stats, nil
}
