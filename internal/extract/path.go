// Package extract implements declarative path navigation over decoded JSON
// payloads: dot-path lookup with an escaped-dot and a $root sentinel, and
// record-list extraction via a small selector grammar over dataKey.
package extract

import (
	"strings"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// RootSentinel is the dataKey/path prefix that redirects lookup to the
// original top-level payload instead of the current record.
const RootSentinel = "$root."

// SplitKey splits a dot-path into segments, honoring "/." as an escaped
// literal dot within a segment. A character-by-character scan is required
// because a naive strings.Split would also break on escaped dots. Empty
// segments (leading, trailing, or consecutive dots) are dropped rather than
// producing "" keys.
func SplitKey(key string) []string {
	var segments []string
	var current strings.Builder
	runes := []rune(key)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '/' && i+1 < len(runes) && runes[i+1] == '.' {
			current.WriteRune('.')
			i++
			continue
		}
		if r == '.' {
			if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// LookupPath resolves a dot-path against record, redirecting to root when
// the path carries the $root. sentinel. A missing intermediate key yields
// (nil, nil): a nil value, never an error. $root.* against a non-object root raises
// SHAPE_MISMATCH.
func LookupPath(record map[string]interface{}, root interface{}, path string) (interface{}, error) {
	target := interface{}(record)
	if strings.HasPrefix(path, RootSentinel) {
		rootMap, ok := root.(map[string]interface{})
		if !ok {
			return nil, errs.ShapeMismatch("$root path used against a non-object payload")
		}
		target = rootMap
		path = path[len(RootSentinel):]
	}

	var cur interface{} = target
	for _, seg := range SplitKey(path) {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		v, exists := m[seg]
		if !exists {
			return nil, nil
		}
		cur = v
	}
	return cur, nil
}

// HasRootReference reports whether any of the given dataKey-style paths
// reference the $root sentinel, used by the engine to validate the payload
// shape before record extraction.
func HasRootReference(paths ...string) bool {
	for _, p := range paths {
		if strings.HasPrefix(p, RootSentinel) {
			return true
		}
	}
	return false
}
