package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name        string
	placeholder func(n int) string
	columnType  func(c column) string
}

// Postgres is the PostgreSQL dialect (lib/pq).
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	columnType:  postgresColumnType,
}

// SQLite is the SQLite dialect (mattn/go-sqlite3).
var SQLite = Dialect{
	Name:        "sqlite3",
	placeholder: func(int) string { return "?" },
	columnType:  sqliteColumnType,
}

// NewPostgresStoresFromDSN creates PostgreSQL-backed stores using a DSN.
func NewPostgresStoresFromDSN(dsn string, config *SQLConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	db, err := openDB("postgres", dsn, config)
	if err != nil {
		return StoreSet{}, err
	}
	return NewSQLStores(db, Postgres, config), nil
}

// NewSQLiteStores creates SQLite-backed stores at path.
func NewSQLiteStores(path string, config *SQLConfig) (StoreSet, error) {
	if strings.TrimSpace(path) == "" {
		return StoreSet{}, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	if config == nil {
		config = DefaultSQLConfig()
	}
	cfg := *config
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	db, err := openDB("sqlite3", dsn, &cfg)
	if err != nil {
		return StoreSet{}, err
	}
	return NewSQLStores(db, SQLite, &cfg), nil
}

func openDB(driver, dsn string, config *SQLConfig) (*sql.DB, error) {
	if config == nil {
		config = DefaultSQLConfig()
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewSQLStores wires every collection onto an open database.
func NewSQLStores(db *sql.DB, dialect Dialect, config *SQLConfig) StoreSet {
	if config == nil {
		config = DefaultSQLConfig()
	}
	return StoreSet{
		Stores:             newSQLCollection[models.Store](db, dialect, storesTable, config),
		Partners:           newSQLCollection[models.BusinessPartner](db, dialect, partnersTable, config),
		Employees:          newSQLCollection[models.Employee](db, dialect, employeesTable, config),
		Contracts:          newSQLCollection[models.Contract](db, dialect, contractsTable, config),
		Schedules:          newSQLCollection[models.WorkSchedule](db, dialect, schedulesTable, config),
		Salaries:           newSQLCollection[models.SalaryComponent](db, dialect, salariesTable, config),
		AttendanceRecords:  newSQLCollection[models.AttendanceRecord](db, dialect, attendanceRecordsTable, config),
		AttendanceSessions: newSQLCollection[models.AttendanceSession](db, dialect, attendanceSessionsTable, config),
		Payslips:           newSQLCollection[models.Payslip](db, dialect, payslipsTable, config),
		Orders:             newSQLCollection[models.Order](db, dialect, ordersTable, config),
		db:                 db,
		dialect:            dialect,
		closer:             db.Close,
	}
}

type sqlCollection[T any] struct {
	db      *sql.DB
	dialect Dialect
	table   *table
	metrics *observability.Metrics
	tracer  *observability.Tracer
	timeout func(context.Context) (context.Context, context.CancelFunc)
}

func newSQLCollection[T any](db *sql.DB, dialect Dialect, t *table, config *SQLConfig) *sqlCollection[T] {
	c := &sqlCollection[T]{db: db, dialect: dialect, table: t, metrics: config.Metrics, tracer: config.Tracer}
	c.timeout = func(ctx context.Context) (context.Context, context.CancelFunc) {
		if config.QueryTimeout <= 0 {
			return context.WithCancel(ctx)
		}
		return context.WithTimeout(ctx, config.QueryTimeout)
	}
	return c
}

// buildSelect renders the SELECT statement and its arguments.
func buildSelect(t *table, dialect Dialect, q Query) (string, []any, error) {
	if err := t.checkFilters(q.Filters); err != nil {
		return "", nil, err
	}

	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return dialect.placeholder(len(args))
	}

	for _, f := range q.Filters {
		switch f.Op {
		case OpEq:
			where = append(where, fmt.Sprintf("%s = %s", f.Columns[0], next(f.Value)))
		case OpIn:
			if len(f.Values) == 0 {
				where = append(where, "1 = 0")
				continue
			}
			marks := make([]string, len(f.Values))
			for i, v := range f.Values {
				marks[i] = next(v)
			}
			where = append(where, fmt.Sprintf("%s IN (%s)", f.Columns[0], strings.Join(marks, ", ")))
		case OpContains:
			pattern := "%" + escapeLike(strings.ToLower(fmt.Sprint(f.Value))) + "%"
			ors := make([]string, len(f.Columns))
			for i, c := range f.Columns {
				ors[i] = fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, c, next(pattern))
			}
			where = append(where, "("+strings.Join(ors, " OR ")+")")
		case OpGte:
			where = append(where, fmt.Sprintf("%s >= %s", f.Columns[0], next(f.Value)))
		case OpLte:
			where = append(where, fmt.Sprintf("%s <= %s", f.Columns[0], next(f.Value)))
		default:
			return "", nil, fmt.Errorf("%s: unsupported filter op %d", t.name, f.Op)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(t.columnNames(), ", "))
	b.WriteString(" FROM ")
	b.WriteString(t.name)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(next(q.Limit))
	}
	return b.String(), args, nil
}

func buildInsert(t *table, dialect Dialect) string {
	marks := make([]string, len(t.columns))
	for i := range t.columns {
		marks[i] = dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(t.columnNames(), ", "), strings.Join(marks, ", "))
}

// record ends the query span and reports the query to metrics; status is
// derived from *errp.
func (c *sqlCollection[T]) record(span trace.Span, operation string, start time.Time, errp *error) {
	status := "success"
	if *errp != nil {
		status = "error"
		c.tracer.RecordError(span, *errp)
	}
	span.End()
	c.metrics.RecordDatabaseQuery(operation, c.table.name, status, time.Since(start).Seconds())
}

func (c *sqlCollection[T]) Find(ctx context.Context, q Query) (_ []T, err error) {
	query, args, err := buildSelect(c.table, c.dialect, q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.timeout(ctx)
	defer cancel()
	ctx, span := c.tracer.TraceDatabaseQuery(ctx, "select", c.table.name)
	defer c.record(span, "select", time.Now(), &err)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.table.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var row T
		if err := rows.Scan(c.table.scanTargets(reflect.ValueOf(&row).Elem())...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.table.name, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c.table.name, err)
	}
	return out, nil
}

func (c *sqlCollection[T]) Insert(ctx context.Context, row *T) (err error) {
	if row == nil {
		return fmt.Errorf("%s: row is required", c.table.name)
	}

	ctx, cancel := c.timeout(ctx)
	defer cancel()
	ctx, span := c.tracer.TraceDatabaseQuery(ctx, "insert", c.table.name)
	defer c.record(span, "insert", time.Now(), &err)

	_, err = c.db.ExecContext(ctx, buildInsert(c.table, c.dialect), c.table.values(reflect.ValueOf(row).Elem())...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert %s: %w", c.table.name, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
