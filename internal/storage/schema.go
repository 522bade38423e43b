package storage

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

func postgresColumnType(c column) string {
	switch {
	case c.typ == timeType:
		return "TIMESTAMPTZ NOT NULL DEFAULT now()"
	case c.typ.Kind() == reflect.Pointer && c.typ.Elem() == timeType:
		return "TIMESTAMPTZ"
	case c.typ.Kind() == reflect.Int, c.typ.Kind() == reflect.Int64:
		return "BIGINT NOT NULL DEFAULT 0"
	default:
		return "TEXT NOT NULL DEFAULT ''"
	}
}

func sqliteColumnType(c column) string {
	switch {
	case c.typ == timeType:
		return "DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP"
	case c.typ.Kind() == reflect.Pointer && c.typ.Elem() == timeType:
		return "DATETIME"
	case c.typ.Kind() == reflect.Int, c.typ.Kind() == reflect.Int64:
		return "INTEGER NOT NULL DEFAULT 0"
	default:
		return "TEXT NOT NULL DEFAULT ''"
	}
}

// indexedColumns are the filter columns worth an index besides created_at.
var indexedColumns = map[string][]string{
	TableEmployees:          {"store_id", "name"},
	TableContracts:          {"employee_id"},
	TableSchedules:          {"contract_id"},
	TableSalaries:           {"contract_id"},
	TableAttendanceRecords:  {"employee_id", "store_id", "work_date"},
	TableAttendanceSessions: {"employee_id", "store_id", "work_date"},
	TablePayslips:           {"employee_id", "payment_date"},
	TableOrders:             {"store_id", "business_date"},
}

// SchemaStatements returns the DDL for every table in the dialect.
func SchemaStatements(dialect Dialect) []string {
	var stmts []string
	for _, t := range tables() {
		defs := make([]string, 0, len(t.columns))
		for _, c := range t.columns {
			if c.name == "id" {
				defs = append(defs, "id TEXT PRIMARY KEY")
				continue
			}
			defs = append(defs, c.name+" "+dialect.columnType(c))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(defs, ",\n\t")))

		cols := append([]string{"created_at"}, indexedColumns[t.name]...)
		for _, col := range cols {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", t.name, col, t.name, col))
		}
	}
	return stmts
}

// Migrate applies the schema inside one transaction.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for _, stmt := range SchemaStatements(dialect) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
