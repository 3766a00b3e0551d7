package extract

import (
	"encoding/json"
	"testing"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/allaspectsdev/otel-api-scraper/internal/testutil"
)

func TestExtractRecords_EmptyDataKeyRequiresRootList(t *testing.T) {
	records, err := ExtractRecords([]interface{}{
		map[string]interface{}{"id": 1},
		map[string]interface{}{"id": 2},
	}, "")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestExtractRecords_EmptyDataKeyRejectsNonList(t *testing.T) {
	_, err := ExtractRecords(map[string]interface{}{"id": 1}, "")
	if !errs.Is(err, errs.KindShapeMismatch) {
		t.Fatalf("expected SHAPE_MISMATCH, got %v", err)
	}
}

func TestExtractRecords_SimpleNestedKey(t *testing.T) {
	payload := map[string]interface{}{
		"data": []interface{}{
			map[string]interface{}{"id": 1},
			map[string]interface{}{"id": 2},
		},
	}
	records, err := ExtractRecords(payload, "data[]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestExtractRecords_IndexSelector(t *testing.T) {
	payload := map[string]interface{}{
		"pages": []interface{}{
			map[string]interface{}{"items": []interface{}{
				map[string]interface{}{"id": "a"},
				map[string]interface{}{"id": "b"},
			}},
		},
	}
	records, err := ExtractRecords(payload, "pages[0].items[]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestExtractRecords_NegativeIndexSelector(t *testing.T) {
	payload := map[string]interface{}{
		"pages": []interface{}{
			map[string]interface{}{"v": 1},
			map[string]interface{}{"v": 2},
		},
	}
	records, err := ExtractRecords(payload, "pages[-1]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 1 || records[0]["v"] != 2 {
		t.Fatalf("got %+v, want [{v:2}]", records)
	}
}

func TestExtractRecords_IndexOutOfBounds(t *testing.T) {
	payload := map[string]interface{}{
		"pages": []interface{}{map[string]interface{}{"v": 1}},
	}
	_, err := ExtractRecords(payload, "pages[5]")
	if !errs.Is(err, errs.KindShapeMismatch) {
		t.Fatalf("expected SHAPE_MISMATCH, got %v", err)
	}
}

func TestExtractRecords_SliceSelector(t *testing.T) {
	payload := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"v": 1},
			map[string]interface{}{"v": 2},
			map[string]interface{}{"v": 3},
			map[string]interface{}{"v": 4},
		},
	}
	records, err := ExtractRecords(payload, "items[1:3]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 2 || records[0]["v"] != 2 || records[1]["v"] != 3 {
		t.Fatalf("got %+v", records)
	}
}

func TestExtractRecords_SliceSelectorOpenBounds(t *testing.T) {
	payload := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"v": 1},
			map[string]interface{}{"v": 2},
			map[string]interface{}{"v": 3},
		},
	}
	records, err := ExtractRecords(payload, "items[:2]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestExtractRecords_MissingIntermediateKeySkips(t *testing.T) {
	payload := map[string]interface{}{
		"a": []interface{}{
			map[string]interface{}{"present": map[string]interface{}{"v": 1}},
			map[string]interface{}{"other": 1},
		},
	}
	records, err := ExtractRecords(payload, "a[].present")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestExtractRecords_EmptyResultNoError(t *testing.T) {
	payload := map[string]interface{}{"a": []interface{}{}}
	records, err := ExtractRecords(payload, "a[].missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestExtractRecords_NonDictListRejected(t *testing.T) {
	payload := map[string]interface{}{
		"a": []interface{}{"not-a-dict"},
	}
	_, err := ExtractRecords(payload, "a[]")
	if !errs.Is(err, errs.KindShapeMismatch) {
		t.Fatalf("expected SHAPE_MISMATCH, got %v", err)
	}
}

func TestExtractRecords_SampleFixtures(t *testing.T) {
	var instant interface{}
	if err := json.Unmarshal(testutil.SampleInstantPayload(), &instant); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	records, err := ExtractRecords(instant, "")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 2 || records[0]["status"] != "ok" {
		t.Fatalf("got %+v", records)
	}

	var ranged interface{}
	if err := json.Unmarshal(testutil.SampleRangePayload(), &ranged); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	records, err = ExtractRecords(ranged, "data[]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
}

func TestExtractRecords_EscapedDotSegmentName(t *testing.T) {
	payload := map[string]interface{}{
		"a.b": []interface{}{
			map[string]interface{}{"id": 1},
		},
	}
	records, err := ExtractRecords(payload, "a/.b[]")
	if err != nil {
		t.Fatalf("ExtractRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}
