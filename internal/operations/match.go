package operations

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/haasonsaas/opsassist/internal/storage"
)

// scanCap bounds the in-memory fallback scan of a fuzzy search.
const scanCap = 500

// foldText normalizes text for matching: NFC composition, full-width folding,
// case folding and whitespace removal.
func foldText(s string) string {
	s = norm.NFC.String(s)
	s = width.Fold.String(s)
	// Casers keep state, so each call gets its own.
	s = cases.Fold().String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func fuzzyContains(haystack, needle string) bool {
	n := foldText(needle)
	if n == "" {
		return false
	}
	return strings.Contains(foldText(haystack), n)
}

func fuzzyEqual(a, b string) bool {
	return foldText(a) == foldText(b) && foldText(a) != ""
}

// searchRows finds rows whose columns contain term. The store is queried with
// a case-insensitive substring first; when that finds nothing, a bounded scan
// is matched in memory with full Unicode folding so width and composition
// variants still match.
func searchRows[T any](ctx context.Context, c storage.Collection[T], base storage.Query, term string, columns []string, texts func(T) []string) ([]T, error) {
	term = strings.TrimSpace(term)
	rows, err := c.Find(ctx, base.And(storage.Contains(term, columns...)))
	if err != nil || len(rows) > 0 {
		return rows, err
	}

	scan, err := c.Find(ctx, base.WithLimit(scanCap))
	if err != nil {
		return nil, err
	}
	var matched []T
	for _, row := range scan {
		for _, text := range texts(row) {
			if fuzzyContains(text, term) {
				matched = append(matched, row)
				break
			}
		}
		if base.Limit > 0 && len(matched) >= base.Limit {
			break
		}
	}
	return matched, nil
}

// pickOne narrows search results to a single row: a sole match wins, and
// among several matches a unique exact match on any text wins.
func pickOne[T any](rows []T, term string, texts func(T) []string) (T, bool) {
	var zero T
	if len(rows) == 1 {
		return rows[0], true
	}
	var exact []T
	for _, row := range rows {
		for _, text := range texts(row) {
			if fuzzyEqual(text, term) {
				exact = append(exact, row)
				break
			}
		}
	}
	if len(exact) == 1 {
		return exact[0], true
	}
	return zero, false
}
