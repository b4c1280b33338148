package features

import (
	"fmt"
	"strings"
	"time"
)

// Granularity sizes the calendar-aligned aggregation window.
type Granularity string

const (
	GranularityDay   Granularity = "DAY"
	GranularityHour  Granularity = "HOUR"
	GranularityMonth Granularity = "MONTH"
)

// ParseGranularity normalizes a configuration value into a Granularity.
func ParseGranularity(v string) (Granularity, error) {
	switch Granularity(strings.ToUpper(strings.TrimSpace(v))) {
	case GranularityDay:
		return GranularityDay, nil
	case GranularityHour:
		return GranularityHour, nil
	case GranularityMonth, "":
		return GranularityMonth, nil
	}
	return "", fmt.Errorf("unknown period granularity %q", v)
}

// periodBucket labels the calendar bucket a timestamp falls into, with
// explicit start and end dates. Month ends honor the real month length.
func periodBucket(ts time.Time, g Granularity) (key, start, end string) {
	ts = ts.UTC()
	switch g {
	case GranularityDay:
		key = ts.Format("2006-01-02")
		return key, key, key
	case GranularityHour:
		key = ts.Format("2006-01-02T15")
		start = key + ":00:00"
		return key, start, start
	default:
		key = ts.Format("2006-01")
		lastDay := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC).
			AddDate(0, 1, -1).Day()
		return key, key + "-01", fmt.Sprintf("%s-%02d", key, lastDay)
	}
}
