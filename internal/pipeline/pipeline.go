package pipeline

import (
	"sync"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/store"
)

// Pipeline runs the filter -> limit -> dedup stages for one source's
// scraped record batch. A Pipeline is safe for concurrent use; LastStats
// reflects the most recently completed Run.
type Pipeline struct {
	source     string
	filters    config.FiltersConfig
	dedup      config.DeltaDetectionConfig
	store      store.FingerprintStore
	defaultTTL time.Duration

	mu        sync.Mutex
	lastStats Stats
}

// New builds a Pipeline for source. defaultTTL is used for dedup when the
// source's deltaDetection.ttlSeconds is unset.
func New(source string, filters config.FiltersConfig, dedup config.DeltaDetectionConfig, fs store.FingerprintStore, defaultTTL time.Duration) *Pipeline {
	return &Pipeline{
		source:     source,
		filters:    filters,
		dedup:      dedup,
		store:      fs,
		defaultTTL: defaultTTL,
	}
}

// Run filters, caps, and (if enabled) deduplicates records, returning the
// surviving subset in original order.
func (p *Pipeline) Run(records []Record) ([]Record, error) {
	records = applyFilters(records, p.filters)
	records = applyLimit(records, p.filters.Limits.MaxRecordsPerScrape)

	if !p.dedup.Enabled {
		p.setStats(Stats{})
		return records, nil
	}

	ttl := p.defaultTTL
	if p.dedup.TTLSeconds > 0 {
		ttl = time.Duration(p.dedup.TTLSeconds) * time.Second
	}

	kept, stats, err := applyDedup(p.store, p.source, records, p.dedup, ttl)
	p.setStats(stats)
	if err != nil {
		return nil, err
	}
	return kept, nil
}

func (p *Pipeline) setStats(s Stats) {
	p.mu.Lock()
	p.lastStats = s
	p.mu.Unlock()
}

// LastStats returns the {hits,misses,total} dedup stats from the most
// recently completed Run.
func (p *Pipeline) LastStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStats
}
