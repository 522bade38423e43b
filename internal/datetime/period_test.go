package datetime

import (
	"fmt"
	"testing"
	"time"
)

var kst = time.FixedZone("UTC+09:00", 9*3600)

func TestResolveAt_Tokens(t *testing.T) {
	r := NewResolver(kst)
	// 2025-03-10 02:00Z is Monday 11:00 in UTC+9.
	ref := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		token Period
		want  Range
	}{
		{PeriodToday, Range{"2025-03-10", "2025-03-10"}},
		{PeriodYesterday, Range{"2025-03-09", "2025-03-09"}},
		{PeriodThisWeek, Range{"2025-03-09", "2025-03-10"}},
		{PeriodLastWeek, Range{"2025-03-02", "2025-03-08"}},
		{PeriodThisMonth, Range{"2025-03-01", "2025-03-10"}},
		{PeriodLastMonth, Range{"2025-02-01", "2025-02-28"}},
		{Period("next_decade"), Range{"2025-03-10", "2025-03-10"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.token), func(t *testing.T) {
			if got := r.ResolveAt(tt.token, "", "", ref); got != tt.want {
				t.Errorf("ResolveAt(%s) = %+v, want %+v", tt.token, got, tt.want)
			}
		})
	}
}

func TestResolveAt_LocalDateCrossesUTCMidnight(t *testing.T) {
	r := NewResolver(kst)
	// 15:30Z on the 9th is already the 10th in UTC+9.
	ref := time.Date(2025, 3, 9, 15, 30, 0, 0, time.UTC)
	got := r.ResolveAt(PeriodToday, "", "", ref)
	if got.Start != "2025-03-10" {
		t.Errorf("today = %s, want 2025-03-10", got.Start)
	}
}

func TestResolveAt_LastMonthOnFirstDay(t *testing.T) {
	r := NewResolver(kst)
	ref := time.Date(2025, 3, 1, 0, 0, 0, 0, kst)
	got := r.ResolveAt(PeriodLastMonth, "", "", ref)
	want := Range{"2025-02-01", "2025-02-28"}
	if got != want {
		t.Errorf("last_month = %+v, want %+v", got, want)
	}
}

func TestResolveAt_ThisWeekOnSunday(t *testing.T) {
	r := NewResolver(kst)
	ref := time.Date(2025, 3, 9, 12, 0, 0, 0, kst)
	if got := r.ResolveAt(PeriodThisWeek, "", "", ref); got != (Range{"2025-03-09", "2025-03-09"}) {
		t.Errorf("this_week on Sunday = %+v", got)
	}
	if got := r.ResolveAt(PeriodLastWeek, "", "", ref); got != (Range{"2025-03-02", "2025-03-08"}) {
		t.Errorf("last_week on Sunday = %+v", got)
	}
}

func TestResolveAt_Custom(t *testing.T) {
	r := NewResolver(kst)
	ref := time.Date(2025, 6, 15, 12, 0, 0, 0, kst)

	tests := []struct {
		name       string
		start, end string
		want       Range
	}{
		{"full dates", "2025-01-05", "2025-01-20", Range{"2025-01-05", "2025-01-20"}},
		{"month day", "12-25", "12-25", Range{"2025-12-25", "2025-12-25"}},
		{"unpadded", "3-5", "3/9", Range{"2025-03-05", "2025-03-09"}},
		{"dotted", "4.1", "4.30", Range{"2025-04-01", "2025-04-30"}},
		{"unpadded with year", "2024-1-2", "2024-1-9", Range{"2024-01-02", "2024-01-09"}},
		{"garbage start", "soon", "2025-06-20", Range{"2025-06-15", "2025-06-20"}},
		{"impossible date", "02-30", "2025-06-20", Range{"2025-06-15", "2025-06-20"}},
		{"inverted is swapped", "2025-05-31", "2025-05-01", Range{"2025-05-01", "2025-05-31"}},
		{"missing end", "2025-01-05", "", Range{"2025-06-15", "2025-06-15"}},
		{"missing start", "", "2025-01-05", Range{"2025-06-15", "2025-06-15"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ResolveAt(PeriodCustom, tt.start, tt.end, ref); got != tt.want {
				t.Errorf("ResolveAt(custom, %q, %q) = %+v, want %+v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestResolveAt_CustomIsIdempotent(t *testing.T) {
	r := NewResolver(kst)
	ref := time.Date(2025, 6, 15, 12, 0, 0, 0, kst)
	inputs := [][2]string{
		{"12-25", "1-3"},
		{"2025-02-01", "2025-02-10"},
		{"x", "y"},
		{"9/1", "2024-12-31"},
	}

	for _, in := range inputs {
		first := r.ResolveAt(PeriodCustom, in[0], in[1], ref)
		second := r.ResolveAt(PeriodCustom, first.Start, first.End, ref)
		if first != second {
			t.Errorf("custom(%q,%q): %+v then %+v", in[0], in[1], first, second)
		}
	}
}

func TestResolveAt_AlwaysWellFormed(t *testing.T) {
	r := NewResolver(kst)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for hours := 0; hours < 24*400; hours += 7 {
		ref := base.Add(time.Duration(hours) * time.Hour)
		for _, token := range Periods() {
			got := r.ResolveAt(token, "10-5", "3-1", ref)
			if _, err := time.Parse(DateLayout, got.Start); err != nil {
				t.Fatalf("%s at %s: bad start %q", token, ref, got.Start)
			}
			if _, err := time.Parse(DateLayout, got.End); err != nil {
				t.Fatalf("%s at %s: bad end %q", token, ref, got.End)
			}
			if got.Start > got.End {
				t.Fatalf("%s at %s: start %s after end %s", token, ref, got.Start, got.End)
			}
		}
	}
}

func TestResolveInput(t *testing.T) {
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	r := NewResolver(kst).WithClock(func() time.Time { return now })

	if got := r.ResolveInput("", "", "", PeriodThisMonth); got != (Range{"2025-03-01", "2025-03-10"}) {
		t.Errorf("fallback = %+v", got)
	}
	if got := r.ResolveInput("", "03-01", "", PeriodToday); got != (Range{"2025-03-01", "2025-03-01"}) {
		t.Errorf("start only = %+v", got)
	}
	if got := r.ResolveInput("yesterday", "01-01", "01-31", PeriodToday); got != (Range{"2025-03-09", "2025-03-09"}) {
		t.Errorf("explicit token = %+v", got)
	}
}

func TestRange_Contains(t *testing.T) {
	rg := Range{Start: "2025-03-01", End: "2025-03-31"}
	for day, want := range map[string]bool{
		"2025-02-28": false,
		"2025-03-01": true,
		"2025-03-31": true,
		"2025-04-01": false,
	} {
		if got := rg.Contains(day); got != want {
			t.Errorf("Contains(%s) = %v, want %v", day, got, want)
		}
	}
	if fmt.Sprint(Range{"2025-03-01", "2025-03-01"}) != "2025-03-01" {
		t.Error("single-day range should render as one date")
	}
}
