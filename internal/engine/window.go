package engine

import (
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/allaspectsdev/otel-api-scraper/internal/freq"
)

// Window is one fetch unit: either the single instant-scrape request, or
// one [Start, End) slice of a range scrape.
type Window struct {
	Instant bool
	Start   time.Time
	End     time.Time
}

// planResult is what PLAN computes for one source tick.
type planResult struct {
	windows   []Window
	skip      bool      // runFirstScrape=false with no prior watermark: skip this tick
	watermark time.Time // set alongside skip, so the caller can persist it
}

// planWindows computes the window set for one source's tick. tickStart is
// the instant this tick began; lastSuccess/hasLastSuccess is the
// previously committed watermark for range sources.
func planWindows(src config.SourceConfig, frequency string, tickStart time.Time, lastSuccess time.Time, hasLastSuccess bool) (planResult, error) {
	if src.Scrape.Type != "range" {
		return planResult{windows: []Window{{Instant: true}}}, nil
	}

	var start time.Time
	rk := src.Scrape.RangeKeys

	if !hasLastSuccess {
		if !src.Scrape.RunFirstScrape {
			return planResult{skip: true, watermark: tickStart}, nil
		}
		if rk != nil && rk.FirstScrapeStart != "" {
			parsed, err := time.Parse(time.RFC3339, rk.FirstScrapeStart)
			if err != nil {
				return planResult{}, errs.ConfigInvalid(err)
			}
			start = parsed
		} else {
			freqDur, err := freq.Parse(frequency)
			if err != nil {
				return planResult{}, err
			}
			start = tickStart.Add(-freqDur)
		}
	} else {
		start = lastSuccess
	}
	end := tickStart

	windows, err := splitParallelWindows(start, end, src.Scrape.ParallelWindow)
	if err != nil {
		return planResult{}, err
	}
	return planResult{windows: windows}, nil
}

// splitParallelWindows splits [start, end) into contiguous sub-windows of
// the configured delta when parallelWindow is set; the final slice is
// truncated to end. A nil parallelWindow yields the single [start, end)
// window.
func splitParallelWindows(start, end time.Time, pw *config.ParallelWindow) ([]Window, error) {
	if pw == nil || pw.Value <= 0 {
		return []Window{{Start: start, End: end}}, nil
	}
	unitSecs, err := freq.UnitSeconds(pw.Unit)
	if err != nil {
		return nil, errs.ConfigInvalid(err)
	}
	delta := time.Duration(int64(pw.Value)*unitSecs) * time.Second

	var windows []Window
	cursor := start
	for cursor.Before(end) {
		next := cursor.Add(delta)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cursor, End: next})
		cursor = next
	}
	if len(windows) == 0 {
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows, nil
}
