package pipeline

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/extract"
)

// matchPredicate reports whether predicate matches record. A nil candidate
// (missing or null field) never matches any predicate.
func matchPredicate(record Record, p config.MatchPredicate) bool {
	candidate, err := extract.LookupPath(record, record, p.Field)
	if err != nil {
		return false
	}
	if candidate == nil {
		return false
	}

	switch p.MatchType {
	case "equals":
		return deepEqualNormalized(candidate, p.Value)
	case "not_equals":
		return !deepEqualNormalized(candidate, p.Value)
	case "in":
		return matchIn(candidate, p.Value)
	case "regex":
		return matchRegex(candidate, p.Value)
	default:
		return false
	}
}

// matchIn implements the asymmetric "in" semantics: if the expected value
// is a sequence, the candidate must be one of its elements; otherwise, if
// the candidate is itself a string or sequence, the expected value must
// appear within it.
func matchIn(candidate, expected interface{}) bool {
	if seq, ok := asSlice(expected); ok {
		for _, v := range seq {
			if deepEqualNormalized(candidate, v) {
				return true
			}
		}
		return false
	}

	if s, ok := candidate.(string); ok {
		if es, ok := expected.(string); ok {
			return containsSubstring(s, es)
		}
	}
	if seq, ok := asSlice(candidate); ok {
		for _, v := range seq {
			if deepEqualNormalized(v, expected) {
				return true
			}
		}
		return false
	}
	return false
}

func matchRegex(candidate, pattern interface{}) bool {
	pat, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprintf("%v", candidate))
}

func containsSubstring(haystack, needle string) bool {
	re, err := regexp.Compile(regexp.QuoteMeta(needle))
	if err != nil {
		return false
	}
	return re.MatchString(haystack)
}

func asSlice(v interface{}) ([]interface{}, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// deepEqualNormalized compares two decoded values for deep structural
// equality after normalizing numeric kinds to float64, so a YAML-decoded
// int and a JSON-decoded float64 representing the same value compare
// equal.
func deepEqualNormalized(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
