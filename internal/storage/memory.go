package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/opsassist/pkg/models"
)

// NewMemoryStores creates an empty in-memory store set.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Stores:             newMemoryCollection[models.Store](storesTable),
		Partners:           newMemoryCollection[models.BusinessPartner](partnersTable),
		Employees:          newMemoryCollection[models.Employee](employeesTable),
		Contracts:          newMemoryCollection[models.Contract](contractsTable),
		Schedules:          newMemoryCollection[models.WorkSchedule](schedulesTable),
		Salaries:           newMemoryCollection[models.SalaryComponent](salariesTable),
		AttendanceRecords:  newMemoryCollection[models.AttendanceRecord](attendanceRecordsTable),
		AttendanceSessions: newMemoryCollection[models.AttendanceSession](attendanceSessionsTable),
		Payslips:           newMemoryCollection[models.Payslip](payslipsTable),
		Orders:             newMemoryCollection[models.Order](ordersTable),
	}
}

// MemoryCollection is an in-memory Collection.
type MemoryCollection[T any] struct {
	mu    sync.RWMutex
	table *table
	rows  []T
	ids   map[string]struct{}
}

func newMemoryCollection[T any](t *table) *MemoryCollection[T] {
	return &MemoryCollection[T]{table: t, ids: make(map[string]struct{})}
}

func (c *MemoryCollection[T]) Insert(ctx context.Context, row *T) error {
	if row == nil {
		return fmt.Errorf("%s: row is required", c.table.name)
	}
	v := reflect.ValueOf(row).Elem()
	id := c.table.field(v, "id").String()
	if id == "" {
		return fmt.Errorf("%s: id is required", c.table.name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.ids[id]; exists {
		return ErrAlreadyExists
	}
	c.ids[id] = struct{}{}
	c.rows = append(c.rows, *row)
	return nil
}

func (c *MemoryCollection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	if err := c.table.checkFilters(q.Filters); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	matched := make([]T, 0)
	for _, row := range c.rows {
		v := reflect.ValueOf(&row).Elem()
		ok := true
		for _, f := range q.Filters {
			if !c.match(v, f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row)
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		vi := reflect.ValueOf(&matched[i]).Elem()
		vj := reflect.ValueOf(&matched[j]).Elem()
		ci := c.table.field(vi, "created_at").Interface().(time.Time)
		cj := c.table.field(vj, "created_at").Interface().(time.Time)
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return c.table.field(vi, "id").String() > c.table.field(vj, "id").String()
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (c *MemoryCollection[T]) match(row reflect.Value, f Filter) bool {
	switch f.Op {
	case OpContains:
		needle := strings.ToLower(fmt.Sprint(f.Value))
		for _, col := range f.Columns {
			if strings.Contains(strings.ToLower(fieldString(c.table.field(row, col))), needle) {
				return true
			}
		}
		return false
	case OpEq:
		cmp, ok := compareField(c.table.field(row, f.Columns[0]), f.Value)
		return ok && cmp == 0
	case OpIn:
		field := c.table.field(row, f.Columns[0])
		for _, v := range f.Values {
			if cmp, ok := compareField(field, v); ok && cmp == 0 {
				return true
			}
		}
		return false
	case OpGte:
		cmp, ok := compareField(c.table.field(row, f.Columns[0]), f.Value)
		return ok && cmp >= 0
	case OpLte:
		cmp, ok := compareField(c.table.field(row, f.Columns[0]), f.Value)
		return ok && cmp <= 0
	default:
		return false
	}
}

func fieldString(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprint(v.Interface())
	}
}

// compareField compares a struct field with a filter value. NULL time
// pointers never compare.
func compareField(field reflect.Value, value any) (int, bool) {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return 0, false
		}
		field = field.Elem()
	}
	switch field.Kind() {
	case reflect.String:
		return strings.Compare(field.String(), fmt.Sprint(value)), true
	case reflect.Int, reflect.Int64, reflect.Int32:
		other, ok := toInt64(value)
		if !ok {
			return 0, false
		}
		a := field.Int()
		switch {
		case a < other:
			return -1, true
		case a > other:
			return 1, true
		}
		return 0, true
	}
	if field.Type() == timeType {
		ts := field.Interface().(time.Time)
		other, ok := value.(time.Time)
		if !ok {
			return 0, false
		}
		return ts.Compare(other), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}
