package pipeline

import "github.com/allaspectsdev/otel-api-scraper/internal/config"

// applyFilters drops records matched by any drop rule, then — if any keep
// rules are configured — retains only records matched by at least one keep
// rule. Drop is always evaluated before keep.
func applyFilters(records []Record, cfg config.FiltersConfig) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if matchesAnyDropRule(r, cfg.Drop) {
			continue
		}
		if len(cfg.Keep) > 0 && !matchesAnyKeepRule(r, cfg.Keep) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesAnyDropRule(r Record, rules []config.DropRule) bool {
	for _, rule := range rules {
		for _, p := range rule.Any {
			if matchPredicate(r, p) {
				return true
			}
		}
	}
	return false
}

func matchesAnyKeepRule(r Record, rules []config.KeepRule) bool {
	for _, rule := range rules {
		if matchesAllPredicates(r, rule.All) {
			return true
		}
	}
	return false
}

func matchesAllPredicates(r Record, predicates []config.MatchPredicate) bool {
	for _, p := range predicates {
		if !matchPredicate(r, p) {
			return false
		}
	}
	return true
}

// applyLimit truncates records to max, keeping the first max entries
// (stable truncation). max <= 0 means unlimited.
func applyLimit(records []Record, max int) []Record {
	if max <= 0 || len(records) <= max {
		return records
	}
	return records[:max]
}
