package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

type pathSegment struct {
	name     string
	selector string // "" means no selector; "all" means []; [:] is kept as the slice ":"
	hasSel   bool
}

// parseDataPath splits a dataKey into segments, each optionally carrying a
// list selector (name[], name[N], name[start:end]).
func parseDataPath(path string) []pathSegment {
	const placeholder = "\x00DOT\x00"
	safe := strings.ReplaceAll(path, "/.", placeholder)
	var segments []pathSegment
	for _, part := range strings.Split(safe, ".") {
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, placeholder, ".")
		if strings.Contains(part, "[") && strings.HasSuffix(part, "]") {
			name, sel, _ := strings.Cut(part, "[")
			selector := strings.TrimSuffix(sel, "]")
			if selector == "" {
				selector = "all"
			}
			segments = append(segments, pathSegment{name: name, selector: selector, hasSel: true})
		} else {
			segments = append(segments, pathSegment{name: part})
		}
	}
	return segments
}

// ExtractRecords pulls a record list out of a decoded JSON payload according
// to the dataKey selector grammar (name, name[], name[N], name[start:end]).
func ExtractRecords(payload interface{}, dataKey string) ([]map[string]interface{}, error) {
	if dataKey == "" {
		list, ok := payload.([]interface{})
		if !ok {
			return nil, errs.ShapeMismatch(fmt.Sprintf("expected list at root but got %T", payload))
		}
		return toRecordList(list)
	}

	segments := parseDataPath(dataKey)
	current := []interface{}{payload}

	for _, seg := range segments {
		var next []interface{}
		for _, item := range current {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			val, present := m[seg.name]
			if !present || val == nil {
				continue
			}
			if !seg.hasSel {
				next = append(next, val)
				continue
			}
			list, ok := val.([]interface{})
			if !ok {
				return nil, errs.ShapeMismatch(fmt.Sprintf("expected list at segment %q but got %T", seg.name, val))
			}
			switch {
			case seg.selector == "all":
				next = append(next, list...)
			case strings.Contains(seg.selector, ":"):
				sliced, err := sliceSelector(list, seg.selector)
				if err != nil {
					return nil, err
				}
				next = append(next, sliced...)
			default:
				idx, err := strconv.Atoi(seg.selector)
				if err != nil {
					return nil, errs.ShapeMismatch(fmt.Sprintf("invalid selector %q on segment %q", seg.selector, seg.name))
				}
				v, err := indexSelector(list, idx, seg.name)
				if err != nil {
					return nil, err
				}
				next = append(next, v)
			}
		}
		current = next
	}

	if len(current) == 0 {
		return []map[string]interface{}{}, nil
	}
	return toRecordList(current)
}

func indexSelector(list []interface{}, idx int, name string) (interface{}, error) {
	n := len(list)
	realIdx := idx
	if realIdx < 0 {
		realIdx += n
	}
	if realIdx < 0 || realIdx >= n {
		return nil, errs.ShapeMismatch(fmt.Sprintf("index %d out of bounds for segment %q", idx, name))
	}
	return list[realIdx], nil
}

func sliceSelector(list []interface{}, selector string) ([]interface{}, error) {
	startStr, endStr, _ := strings.Cut(selector, ":")
	n := len(list)
	start, end := 0, n
	var err error
	if startStr != "" {
		start, err = strconv.Atoi(startStr)
		if err != nil {
			return nil, errs.ShapeMismatch(fmt.Sprintf("invalid slice start %q", startStr))
		}
	}
	if endStr != "" {
		end, err = strconv.Atoi(endStr)
		if err != nil {
			return nil, errs.ShapeMismatch(fmt.Sprintf("invalid slice end %q", endStr))
		}
	}
	start = clampIndex(start, n)
	end = clampIndex(end, n)
	if start > end {
		return []interface{}{}, nil
	}
	return list[start:end], nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// toRecordList converts a slice of decoded JSON values into records: each
// element must be an object, or a list of objects (flattened in), otherwise
// the shape is rejected.
func toRecordList(items []interface{}) ([]map[string]interface{}, error) {
	records := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]interface{}:
			records = append(records, v)
		case []interface{}:
			for _, x := range v {
				m, ok := x.(map[string]interface{})
				if !ok {
					return nil, errs.ShapeMismatch(fmt.Sprintf("expected list of objects but got %T", x))
				}
				records = append(records, m)
			}
		default:
			return nil, errs.ShapeMismatch(fmt.Sprintf("expected list or object from dataKey but got %T", item))
		}
	}
	return records, nil
}
