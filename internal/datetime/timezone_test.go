package datetime

import (
	"testing"
	"time"
)

func TestLoadLocation(t *testing.T) {
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		configured string
		wantOffset int
		wantErr    bool
	}{
		{name: "fixed offset", configured: "+09:00", wantOffset: 9 * 3600},
		{name: "utc prefix", configured: "UTC+9", wantOffset: 9 * 3600},
		{name: "negative compact", configured: "-0330", wantOffset: -(3*3600 + 30*60)},
		{name: "iana", configured: "UTC", wantOffset: 0},
		{name: "out of range", configured: "+15:00", wantErr: true},
		{name: "unknown zone", configured: "Invalid/Timezone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := LoadLocation(tt.configured)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadLocation(%q) expected error", tt.configured)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadLocation(%q) error = %v", tt.configured, err)
			}
			if _, offset := ref.In(loc).Zone(); offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	r := NewResolver(kst).WithClock(func() time.Time {
		return time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	})

	tests := []struct {
		raw, base string
		want      time.Time
		wantErr   bool
	}{
		{raw: "2025-03-10T09:00:00+09:00", want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{raw: "2025-03-10 18:30", want: time.Date(2025, 3, 10, 18, 30, 0, 0, kst)},
		{raw: "08:15", want: time.Date(2025, 3, 10, 8, 15, 0, 0, kst)},
		{raw: "08:15", base: "2025-03-01", want: time.Date(2025, 3, 1, 8, 15, 0, 0, kst)},
		{raw: "later", wantErr: true},
	}

	for _, tt := range tests {
		got, err := r.ParseTimestamp(tt.raw, tt.base)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) error = %v", tt.raw, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
