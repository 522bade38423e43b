package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is used when no zone is configured.
const DefaultTimezone = "Asia/Seoul"

var offsetPattern = regexp.MustCompile(`^(?:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// LoadLocation resolves a configured zone. It accepts IANA names
// ("Asia/Seoul") and fixed offsets ("+09:00", "UTC+9", "-0330").
// An empty value resolves to DefaultTimezone.
func LoadLocation(configured string) (*time.Location, error) {
	trimmed := strings.TrimSpace(configured)
	if trimmed == "" {
		trimmed = DefaultTimezone
	}
	if m := offsetPattern.FindStringSubmatch(strings.ToUpper(trimmed)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("invalid utc offset %q", configured)
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(formatOffsetName(offset), offset), nil
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", configured, err)
	}
	return loc, nil
}

// MustLoadLocation is LoadLocation for constants known to be valid. It falls
// back to a fixed UTC+9 zone when tzdata is unavailable on the host.
func MustLoadLocation(configured string) *time.Location {
	loc, err := LoadLocation(configured)
	if err != nil {
		return time.FixedZone("UTC+09:00", 9*3600)
	}
	return loc
}

func formatOffsetName(offset int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, offset/3600, (offset%3600)/60)
}
