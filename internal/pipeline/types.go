// Package pipeline implements the per-tick record pipeline: filter, then
// cap, then fingerprint-based dedup, run sequentially over one source's
// scraped record batch.
package pipeline

// Record is a single extracted JSON object, as produced by the path
// extractor from a source's payload.
type Record = map[string]interface{}

// Stats summarizes one pipeline Run's dedup consultation, forwarded by the
// engine to self-telemetry.
type Stats struct {
	Hits   int // records dropped because their fingerprint was already seen
	Misses int // records kept because their fingerprint was new or expired
	Total  int // hits + misses; records actually consulted against the store
}
