package datetime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar representation used across the assistant.
const DateLayout = "2006-01-02"

// Period is a symbolic time window token.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodThisWeek  Period = "this_week"
	PeriodLastWeek  Period = "last_week"
	PeriodThisMonth Period = "this_month"
	PeriodLastMonth Period = "last_month"
	PeriodCustom    Period = "custom"
)

// Periods lists every supported token in display order.
func Periods() []Period {
	return []Period{
		PeriodToday, PeriodYesterday, PeriodThisWeek, PeriodLastWeek,
		PeriodThisMonth, PeriodLastMonth, PeriodCustom,
	}
}

// Range is an inclusive pair of local calendar dates. Start <= End always holds
// for values returned by Resolver.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether the YYYY-MM-DD date lies within the range.
func (r Range) Contains(date string) bool {
	return date >= r.Start && date <= r.End
}

// String renders the range for messages.
func (r Range) String() string {
	if r.Start == r.End {
		return r.Start
	}
	return r.Start + " ~ " + r.End
}

// Resolver converts period tokens into concrete ranges in a fixed zone.
type Resolver struct {
	location *time.Location
	now      func() time.Time
}

// NewResolver creates a resolver for the given zone. A nil location means UTC.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{location: loc, now: time.Now}
}

// WithClock returns a copy of the resolver that reads the current instant from now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	clone := *r
	clone.now = now
	return &clone
}

// Location returns the resolver's zone.
func (r *Resolver) Location() *time.Location {
	return r.location
}

// Now returns the current instant in the resolver's zone.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.location)
}

// Today returns the current local date as YYYY-MM-DD.
func (r *Resolver) Today() string {
	return r.Now().Format(DateLayout)
}

// Resolve computes the range for token relative to the current instant.
func (r *Resolver) Resolve(token Period, explicitStart, explicitEnd string) Range {
	return r.ResolveAt(token, explicitStart, explicitEnd, r.now())
}

// ResolveAt computes the range for token relative to ref. It never fails:
// unknown tokens and unparseable custom bounds fall back to today, and an
// inverted custom range is swapped.
func (r *Resolver) ResolveAt(token Period, explicitStart, explicitEnd string, ref time.Time) Range {
	local := ref.In(r.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.location)

	switch Period(strings.ToLower(strings.TrimSpace(string(token)))) {
	case PeriodYesterday:
		return single(today.AddDate(0, 0, -1))
	case PeriodThisWeek:
		return span(startOfWeek(today), today)
	case PeriodLastWeek:
		end := startOfWeek(today).AddDate(0, 0, -1)
		return span(end.AddDate(0, 0, -6), end)
	case PeriodThisMonth:
		return span(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, r.location), today)
	case PeriodLastMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, r.location)
		return span(first.AddDate(0, -1, 0), first.AddDate(0, 0, -1))
	case PeriodCustom:
		if strings.TrimSpace(explicitStart) == "" || strings.TrimSpace(explicitEnd) == "" {
			return single(today)
		}
		start := normalizeDate(explicitStart, today)
		end := normalizeDate(explicitEnd, today)
		if end < start {
			start, end = end, start
		}
		return Range{Start: start, End: end}
	default:
		return single(today)
	}
}

// ResolveInput picks the token for an operation input. An empty token with
// explicit bounds is treated as custom, and an empty token without bounds
// falls back to fallback.
func (r *Resolver) ResolveInput(token, start, end string, fallback Period) Range {
	period := Period(strings.TrimSpace(token))
	if period == "" {
		if strings.TrimSpace(start) != "" || strings.TrimSpace(end) != "" {
			if strings.TrimSpace(end) == "" {
				end = start
			}
			if strings.TrimSpace(start) == "" {
				start = end
			}
			period = PeriodCustom
		} else {
			period = fallback
		}
	}
	return r.Resolve(period, start, end)
}

// NormalizeDate normalizes a single date string the way custom bounds are
// normalized, relative to the current instant.
func (r *Resolver) NormalizeDate(raw string) string {
	local := r.Now()
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.location)
	return normalizeDate(raw, today)
}

func single(day time.Time) Range {
	s := day.Format(DateLayout)
	return Range{Start: s, End: s}
}

func span(start, end time.Time) Range {
	return Range{Start: start.Format(DateLayout), End: end.Format(DateLayout)}
}

func startOfWeek(day time.Time) time.Time {
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// normalizeDate accepts YYYY-MM-DD, MM-DD and M-D style inputs (with '-', '/'
// or '.' separators). Anything else resolves to today.
func normalizeDate(raw string, today time.Time) string {
	value := strings.TrimSpace(raw)
	if _, err := time.Parse(DateLayout, value); err == nil {
		return value
	}

	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	var year, month, day int
	var err error
	switch len(fields) {
	case 2:
		year = today.Year()
		if month, err = strconv.Atoi(fields[0]); err != nil {
			return today.Format(DateLayout)
		}
		if day, err = strconv.Atoi(fields[1]); err != nil {
			return today.Format(DateLayout)
		}
	case 3:
		if len(fields[0]) != 4 {
			return today.Format(DateLayout)
		}
		if year, err = strconv.Atoi(fields[0]); err != nil {
			return today.Format(DateLayout)
		}
		if month, err = strconv.Atoi(fields[1]); err != nil {
			return today.Format(DateLayout)
		}
		if day, err = strconv.Atoi(fields[2]); err != nil {
			return today.Format(DateLayout)
		}
	default:
		return today.Format(DateLayout)
	}

	candidate := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	if _, err := time.Parse(DateLayout, candidate); err != nil {
		return today.Format(DateLayout)
	}
	return candidate
}
