package storage

import "strings"

// Op is a filter operator.
type Op int

const (
	OpEq Op = iota
	OpIn
	OpContains
	OpGte
	OpLte
)

// Filter restricts a Find. Contains matches when any of Columns contains
// Value as a case-insensitive substring; the other operators use Columns[0].
type Filter struct {
	Op      Op
	Columns []string
	Value   any
	Values  []any
}

// Eq matches column = value.
func Eq(column string, value any) Filter {
	return Filter{Op: OpEq, Columns: []string{column}, Value: value}
}

// In matches column against any of values. An empty set matches nothing.
func In(column string, values ...string) Filter {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Filter{Op: OpIn, Columns: []string{column}, Values: vals}
}

// Contains matches a case-insensitive substring in any of columns.
func Contains(value string, columns ...string) Filter {
	return Filter{Op: OpContains, Columns: columns, Value: value}
}

// Gte matches column >= value.
func Gte(column string, value any) Filter {
	return Filter{Op: OpGte, Columns: []string{column}, Value: value}
}

// Lte matches column <= value.
func Lte(column string, value any) Filter {
	return Filter{Op: OpLte, Columns: []string{column}, Value: value}
}

// Between matches from <= column <= to.
func Between(column string, from, to any) []Filter {
	return []Filter{Gte(column, from), Lte(column, to)}
}

// Query is a filtered, newest-first, limited read.
type Query struct {
	Filters []Filter

	// Limit caps the result size; 0 means unlimited.
	Limit int
}

// Where builds a query from filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// And returns a copy of q with more filters.
func (q Query) And(filters ...Filter) Query {
	out := Query{Limit: q.Limit, Filters: make([]Filter, 0, len(q.Filters)+len(filters))}
	out.Filters = append(out.Filters, q.Filters...)
	out.Filters = append(out.Filters, filters...)
	return out
}

// WithLimit returns a copy of q with a limit.
func (q Query) WithLimit(limit int) Query {
	out := q
	out.Limit = limit
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
