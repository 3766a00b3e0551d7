package engine

import (
	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/allaspectsdev/otel-api-scraper/internal/extract"
)

// validateRootReferences raises SHAPE_MISMATCH up front when any
// metric/log mapping references $root.* but the decoded payload is not an
// object, before record extraction is attempted.
func validateRootReferences(src config.SourceConfig, payload interface{}) error {
	if !extract.HasRootReference(rootCandidateKeys(src)...) {
		return nil
	}
	if _, ok := payload.(map[string]interface{}); !ok {
		return errs.ShapeMismatch("a $root.* mapping is configured but the payload is not an object")
	}
	return nil
}

// rootCandidateKeys collects every dataKey-style path configured for a
// source, across every metric/log mapping, for the $root.* pre-check.
func rootCandidateKeys(src config.SourceConfig) []string {
	keys := make([]string, 0, len(src.GaugeReadings)+len(src.CounterReadings)+len(src.HistogramReadings)+len(src.Attributes)+1)
	for _, g := range src.GaugeReadings {
		keys = append(keys, g.DataKey)
	}
	for _, c := range src.CounterReadings {
		keys = append(keys, c.DataKey)
	}
	for _, h := range src.HistogramReadings {
		keys = append(keys, h.DataKey)
	}
	for _, a := range src.Attributes {
		keys = append(keys, a.DataKey)
	}
	if src.LogStatusField != nil {
		keys = append(keys, src.LogStatusField.Name)
	}
	return keys
}

func extractRecords(src config.SourceConfig, payload interface{}) ([]map[string]interface{}, error) {
	return extract.ExtractRecords(payload, src.DataKey)
}
