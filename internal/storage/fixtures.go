package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/opsassist/pkg/models"
)

// Fixtures is a YAML document of seed rows keyed by table.
type Fixtures struct {
	Partners           []models.BusinessPartner   `yaml:"business_partners"`
	Stores             []models.Store             `yaml:"stores"`
	Employees          []models.Employee          `yaml:"employees"`
	Contracts          []models.Contract          `yaml:"contracts"`
	Schedules          []models.WorkSchedule      `yaml:"work_schedules"`
	Salaries           []models.SalaryComponent   `yaml:"salary_components"`
	AttendanceRecords  []models.AttendanceRecord  `yaml:"attendance_records"`
	AttendanceSessions []models.AttendanceSession `yaml:"attendance_sessions"`
	Payslips           []models.Payslip           `yaml:"payslips"`
	Orders             []models.Order             `yaml:"orders"`
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML, rejecting unknown keys.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := decodeStrict(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &fx, nil
}

// Count returns the number of rows across all tables.
func (f *Fixtures) Count() int {
	return len(f.Partners) + len(f.Stores) + len(f.Employees) + len(f.Contracts) +
		len(f.Schedules) + len(f.Salaries) + len(f.AttendanceRecords) +
		len(f.AttendanceSessions) + len(f.Payslips) + len(f.Orders)
}

// Seed inserts every fixture row. Rows that already exist are skipped.
func Seed(ctx context.Context, set StoreSet, f *Fixtures) (int, error) {
	if f == nil {
		return 0, nil
	}
	inserted := 0
	steps := []func() (int, error){
		func() (int, error) { return seedAll(ctx, set.Partners, f.Partners) },
		func() (int, error) { return seedAll(ctx, set.Stores, f.Stores) },
		func() (int, error) { return seedAll(ctx, set.Employees, f.Employees) },
		func() (int, error) { return seedAll(ctx, set.Contracts, f.Contracts) },
		func() (int, error) { return seedAll(ctx, set.Schedules, f.Schedules) },
		func() (int, error) { return seedAll(ctx, set.Salaries, f.Salaries) },
		func() (int, error) { return seedAll(ctx, set.AttendanceRecords, f.AttendanceRecords) },
		func() (int, error) { return seedAll(ctx, set.AttendanceSessions, f.AttendanceSessions) },
		func() (int, error) { return seedAll(ctx, set.Payslips, f.Payslips) },
		func() (int, error) { return seedAll(ctx, set.Orders, f.Orders) },
	}
	for _, step := range steps {
		n, err := step()
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func seedAll[T any](ctx context.Context, c Collection[T], rows []T) (int, error) {
	n := 0
	for i := range rows {
		err := c.Insert(ctx, &rows[i])
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
