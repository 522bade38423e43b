package storage

import (
	"fmt"
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

type column struct {
	name  string
	index int
	typ   reflect.Type
}

// table maps an entity struct onto a table using its db tags.
type table struct {
	name    string
	typ     reflect.Type
	columns []column
	byName  map[string]column
}

func newTable[T any](name string) *table {
	var zero T
	typ := reflect.TypeOf(zero)
	t := &table{name: name, typ: typ, byName: make(map[string]column)}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		col := column{name: tag, index: i, typ: field.Type}
		t.columns = append(t.columns, col)
		t.byName[tag] = col
	}
	return t
}

func (t *table) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

func (t *table) has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

func (t *table) checkFilters(filters []Filter) error {
	for _, f := range filters {
		if len(f.Columns) == 0 {
			return fmt.Errorf("%s: filter without column", t.name)
		}
		for _, c := range f.Columns {
			if !t.has(c) {
				return fmt.Errorf("%s: unknown column %q", t.name, c)
			}
		}
	}
	return nil
}

// scanTargets returns pointers to every mapped field of row, in column order.
func (t *table) scanTargets(row reflect.Value) []any {
	targets := make([]any, len(t.columns))
	for i, c := range t.columns {
		targets[i] = row.Field(c.index).Addr().Interface()
	}
	return targets
}

// values returns the mapped field values of row, in column order.
func (t *table) values(row reflect.Value) []any {
	vals := make([]any, len(t.columns))
	for i, c := range t.columns {
		vals[i] = row.Field(c.index).Interface()
	}
	return vals
}

func (t *table) field(row reflect.Value, name string) reflect.Value {
	return row.Field(t.byName[name].index)
}
