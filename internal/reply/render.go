package reply

import (
	"regexp"
	"strings"
)

var (
	tableSeparator = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	tableRequest   = regexp.MustCompile(`(?i)(테이블|\btable\b|표(로|를|\s*형식|\s*형태|\s*만들|\s*정리|\s*보여))`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// WantsTable reports whether the user explicitly asked for tabular output.
func WantsTable(userText string) bool {
	return tableRequest.MatchString(userText)
}

// Terse flattens markdown tables into "a · b · c" lines and collapses blank
// runs. Text outside tables is kept as is.
func Terse(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !isTableRow(trimmed) {
			out = append(out, line)
			continue
		}
		if tableSeparator.MatchString(trimmed) {
			continue
		}
		out = append(out, flattenRow(trimmed))
	}
	joined := blankRuns.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(joined)
}

func isTableRow(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func flattenRow(line string) string {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	cells := strings.Split(line, "|")
	kept := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, " · ")
}
