// Package freq parses the scrape frequency grammar shared by the
// scheduler's job interval and the engine's relative-range "from-config"
// window size: <int>(min|m|h|d|w|mon).
package freq

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// monthDays is the fixed month length the grammar uses for "mon" units;
// there is no calendar-aware month arithmetic here.
const monthDays = 30

// Parse converts a frequency string into a duration. A zero or negative
// magnitude is invalid ("0" has no valid unit reading).
func Parse(frequency string) (time.Duration, error) {
	unit, mag, err := splitUnit(frequency)
	if err != nil {
		return 0, err
	}
	if mag <= 0 {
		return 0, errs.ConfigInvalid(fmt.Errorf("frequency %q: magnitude must be > 0", frequency))
	}
	d, err := unitDuration(unit)
	if err != nil {
		return 0, errs.ConfigInvalid(fmt.Errorf("frequency %q: %w", frequency, err))
	}
	return time.Duration(mag) * d, nil
}

// UnitSeconds returns the duration of one unit used by relative-range
// "unit=<unit>" window params (minutes|hours|days|weeks|months), separate
// from the frequency grammar's own unit aliases.
func UnitSeconds(unit string) (int64, error) {
	switch strings.ToLower(unit) {
	case "minutes", "minute", "min", "m":
		return 60, nil
	case "hours", "hour", "h":
		return 3600, nil
	case "days", "day", "d":
		return 86400, nil
	case "weeks", "week", "w":
		return 7 * 86400, nil
	case "months", "month", "mon":
		return monthDays * 86400, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
}

func splitUnit(s string) (unit string, magnitude int, err error) {
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9') {
		i++
	}
	if i == 0 {
		return "", 0, errs.ConfigInvalid(fmt.Errorf("frequency %q: missing integer magnitude", s))
	}
	mag, perr := strconv.Atoi(s[:i])
	if perr != nil {
		return "", 0, errs.ConfigInvalid(fmt.Errorf("frequency %q: %w", s, perr))
	}
	return strings.ToLower(s[i:]), mag, nil
}

func unitDuration(unit string) (time.Duration, error) {
	switch unit {
	case "min", "m":
		return time.Minute, nil
	case "h":
		return time.Hour, nil
	case "d":
		return 24 * time.Hour, nil
	case "w":
		return 7 * 24 * time.Hour, nil
	case "mon":
		return monthDays * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown frequency unit %q", unit)
	}
}
