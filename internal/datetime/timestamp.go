package datetime

import (
	"fmt"
	"strings"
	"time"
)

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var clockLayouts = []string{"15:04:05", "15:04"}

// ParseTimestamp parses an instant supplied by a user or the reasoning engine.
// RFC 3339 values keep their own offset; zone-less values are read in the
// resolver's zone, and a bare clock time ("09:30") is placed on baseDate
// (or today when baseDate is empty).
func (r *Resolver) ParseTimestamp(raw, baseDate string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, value, r.location); err == nil {
			return ts, nil
		}
	}

	day := strings.TrimSpace(baseDate)
	if day == "" {
		day = r.Today()
	}
	for _, layout := range clockLayouts {
		if ts, err := time.ParseInLocation(DateLayout+" "+layout, day+" "+value, r.location); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// LocalDate returns the local calendar date of ts.
func (r *Resolver) LocalDate(ts time.Time) string {
	return ts.In(r.location).Format(DateLayout)
}
