package freq

import (
	"testing"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"5min", 5 * time.Minute},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1mon", 30 * 24 * time.Hour},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParse_ZeroIsInvalid(t *testing.T) {
	_, err := Parse("0m")
	if !errs.Is(err, errs.KindConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID for zero frequency, got %v", err)
	}
}

func TestParse_UnknownUnitIsInvalid(t *testing.T) {
	_, err := Parse("5xyz")
	if !errs.Is(err, errs.KindConfigInvalid) {
		t.Fatalf("expected CONFIG_INVALID for unknown unit, got %v", err)
	}
}

func TestUnitSeconds(t *testing.T) {
	if s, err := UnitSeconds("minutes"); err != nil || s != 60 {
		t.Fatalf("UnitSeconds(minutes) = %d, %v", s, err)
	}
	if s, err := UnitSeconds("hours"); err != nil || s != 3600 {
		t.Fatalf("UnitSeconds(hours) = %d, %v", s, err)
	}
}
