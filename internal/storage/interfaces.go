// Package storage provides the narrow read/insert interface the executor uses
// against the ERP data, with PostgreSQL, SQLite and in-memory backends.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/haasonsaas/opsassist/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Collection is the per-entity access surface. Find always orders rows by
// created_at descending (id descending on ties) before applying the limit.
type Collection[T any] interface {
	Find(ctx context.Context, q Query) ([]T, error)
	Insert(ctx context.Context, row *T) error
}

// StoreSet groups the entity collections.
type StoreSet struct {
	Stores             Collection[models.Store]
	Partners           Collection[models.BusinessPartner]
	Employees          Collection[models.Employee]
	Contracts          Collection[models.Contract]
	Schedules          Collection[models.WorkSchedule]
	Salaries           Collection[models.SalaryComponent]
	AttendanceRecords  Collection[models.AttendanceRecord]
	AttendanceSessions Collection[models.AttendanceSession]
	Payslips           Collection[models.Payslip]
	Orders             Collection[models.Order]

	db      *sql.DB
	dialect Dialect
	closer  func() error
}

// Migrate applies the schema for SQL backends. It is a no-op in memory.
func (s StoreSet) Migrate(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return Migrate(ctx, s.db, s.dialect)
}

// Backend names the storage engine behind the set.
func (s StoreSet) Backend() string {
	if s.db == nil {
		return "memory"
	}
	return s.dialect.Name
}

// Ping checks that the database is reachable. The memory backend is always
// healthy.
func (s StoreSet) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Table names.
const (
	TableStores             = "stores"
	TablePartners           = "business_partners"
	TableEmployees          = "employees"
	TableContracts          = "contracts"
	TableSchedules          = "work_schedules"
	TableSalaries           = "salary_components"
	TableAttendanceRecords  = "attendance_records"
	TableAttendanceSessions = "attendance_sessions"
	TablePayslips           = "payslips"
	TableOrders             = "orders"
)

var (
	storesTable             = newTable[models.Store](TableStores)
	partnersTable           = newTable[models.BusinessPartner](TablePartners)
	employeesTable          = newTable[models.Employee](TableEmployees)
	contractsTable          = newTable[models.Contract](TableContracts)
	schedulesTable          = newTable[models.WorkSchedule](TableSchedules)
	salariesTable           = newTable[models.SalaryComponent](TableSalaries)
	attendanceRecordsTable  = newTable[models.AttendanceRecord](TableAttendanceRecords)
	attendanceSessionsTable = newTable[models.AttendanceSession](TableAttendanceSessions)
	payslipsTable           = newTable[models.Payslip](TablePayslips)
	ordersTable             = newTable[models.Order](TableOrders)
)

// tables lists every table in dependency order.
func tables() []*table {
	return []*table{
		partnersTable, storesTable, employeesTable, contractsTable, schedulesTable,
		salariesTable, attendanceRecordsTable, attendanceSessionsTable, payslipsTable, ordersTable,
	}
}
