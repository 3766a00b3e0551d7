package testutil

import (
	"encoding/json"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
)

// SampleInstantPayload returns an encoded JSON payload shaped as a bare list
// of records, suitable for an instant scrape with an empty dataKey.
func SampleInstantPayload() []byte {
	records := []map[string]interface{}{
		{"id": "1", "status": "ok", "value": 10.5},
		{"id": "2", "status": "fail", "value": 3.25},
	}
	data, _ := json.Marshal(records)
	return data
}

// SampleRangePayload returns an encoded JSON payload shaped as an object
// with a nested "data" list, suitable for dataKey="data".
func SampleRangePayload() []byte {
	payload := map[string]interface{}{
		"data": []map[string]interface{}{
			{"id": "a1", "type": "ignore", "status": "ok"},
			{"id": "a2", "status": "ok"},
			{"id": "a3", "status": "fail"},
		},
		"meta": map[string]interface{}{"total": 3},
	}
	data, _ := json.Marshal(payload)
	return data
}

// SampleInstantSource returns a minimal instant-scrape source named name,
// with no auth, filters, or telemetry mappings.
func SampleInstantSource(name string) config.SourceConfig {
	return config.SourceConfig{
		Name:      name,
		Frequency: "5min",
		BaseURL:   "https://example.test",
		Endpoint:  "/api/records",
		DataKey:   "",
		Scrape: config.ScrapeSpec{
			Type:       "instant",
			HTTPMethod: "GET",
		},
	}
}

// SampleRangeSource returns a minimal range-scrape source named name, using
// relative range keys and no parallel window.
func SampleRangeSource(name string) config.SourceConfig {
	return config.SourceConfig{
		Name:      name,
		Frequency: "5min",
		BaseURL:   "https://example.test",
		Endpoint:  "/api/events",
		DataKey:   "data",
		Scrape: config.ScrapeSpec{
			Type:       "range",
			HTTPMethod: "GET",
			RangeKeys: &config.RangeKeys{
				Unit:         "minutes",
				Value:        "from-config",
				TakeNegative: true,
			},
		},
	}
}
