package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// attendanceScanLimit bounds the sessions aggregated by one work-hours call.
const attendanceScanLimit = 10000

// attendanceScope resolves the store scope for attendance reads. A named
// employee pins the scope to every store so defaulting never hides their rows.
func (env *env) attendanceScope(ctx context.Context, storeID, storeName string, f employeeFilter) (StoreScope, []string, bool, error) {
	var scope StoreScope
	if f.personal() && strings.TrimSpace(storeID) == "" && strings.TrimSpace(storeName) == "" {
		scope = StoreScope{Name: "전체 매장"}
	} else {
		var err error
		scope, err = env.resolveStore(ctx, storeID, storeName)
		if err != nil {
			return StoreScope{}, nil, false, err
		}
	}

	if !f.personal() {
		return scope, nil, true, nil
	}
	employees, err := env.resolveEmployees(ctx, f, maxPipelineEmployees)
	if err != nil {
		return StoreScope{}, nil, false, err
	}
	ids := make([]string, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}
	return scope, ids, len(ids) > 0, nil
}

// WorkHours is the worked time of one employee over the period.
type WorkHours struct {
	EmployeeRef
	Sessions      int     `json:"sessions"`
	WorkedMinutes int     `json:"worked_minutes"`
	WorkedHours   float64 `json:"worked_hours"`
}

type workHoursRequest struct {
	StoreID      string `json:"store_id"`
	StoreName    string `json:"store_name"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	DateRange    string `json:"date_range"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

func (r *workHoursRequest) validate() error { return nil }

func (r *workHoursRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	f := employeeFilter{ID: r.EmployeeID, Name: r.EmployeeName}
	scope, ids, found, err := env.attendanceScope(ctx, r.StoreID, r.StoreName, f)
	if err != nil {
		return nil, err
	}
	if !found {
		return notFoundEmployees(f), nil
	}
	period := env.dates.ResolveInput(r.DateRange, r.StartDate, r.EndDate, datetime.PeriodThisWeek)

	q := storage.Where(scope.filter("store_id")...).
		And(storage.Between("work_date", period.Start, period.End)...).
		WithLimit(attendanceScanLimit)
	if ids != nil {
		q = q.And(storage.In("employee_id", ids...))
	}
	sessions, err := env.stores.AttendanceSessions.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	totals := map[string]*WorkHours{}
	var order []string
	for _, s := range sessions {
		t, ok := totals[s.EmployeeID]
		if !ok {
			t = &WorkHours{EmployeeRef: EmployeeRef{EmployeeID: s.EmployeeID}}
			totals[s.EmployeeID] = t
			order = append(order, s.EmployeeID)
		}
		t.Sessions++
		t.WorkedMinutes += s.Minutes()
	}

	employees, err := env.employeesByID(ctx, order)
	if err != nil {
		return nil, err
	}
	rows := make([]WorkHours, 0, len(order))
	totalMinutes := 0
	for _, id := range order {
		t := totals[id]
		if e, ok := employees[id]; ok {
			t.EmployeeRef = refOf(e)
		}
		t.WorkedHours = minutesToHours(t.WorkedMinutes)
		totalMinutes += t.WorkedMinutes
		rows = append(rows, *t)
	}

	msg := fmt.Sprintf("%s %s 근무 시간은 총 %.2f시간입니다 (%d명)", scope.Name, period, minutesToHours(totalMinutes), len(rows))
	out := list("work_hours", withScope(msg, scope), rows)
	out.Summary = map[string]any{"worked_minutes": totalMinutes, "worked_hours": minutesToHours(totalMinutes)}
	out.Period = &period
	out.Store = &scope
	return out, nil
}

// AttendanceRow is one clock stamp with the employee's name.
type AttendanceRow struct {
	models.AttendanceRecord
	EmployeeName string `json:"employee_name,omitempty"`
	EmployeeCode string `json:"employee_code,omitempty"`
}

type attendanceRecordsRequest struct {
	StoreID      string `json:"store_id"`
	StoreName    string `json:"store_name"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	RecordType   string `json:"record_type"`
	DateRange    string `json:"date_range"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Limit        int    `json:"limit"`
}

func (r *attendanceRecordsRequest) validate() error { return nil }

func (r *attendanceRecordsRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	f := employeeFilter{ID: r.EmployeeID, Name: r.EmployeeName}
	scope, ids, found, err := env.attendanceScope(ctx, r.StoreID, r.StoreName, f)
	if err != nil {
		return nil, err
	}
	if !found {
		return notFoundEmployees(f), nil
	}
	period := env.dates.ResolveInput(r.DateRange, r.StartDate, r.EndDate, datetime.PeriodToday)

	q := storage.Where(scope.filter("store_id")...).
		And(storage.Between("work_date", period.Start, period.End)...).
		WithLimit(limitOrDefault(r.Limit))
	if ids != nil {
		q = q.And(storage.In("employee_id", ids...))
	}
	if t := filterValue(r.RecordType); t != "" {
		q = q.And(storage.Eq("record_type", t))
	}
	records, err := env.stores.AttendanceRecords.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	empIDs := make([]string, len(records))
	for i, rec := range records {
		empIDs[i] = rec.EmployeeID
	}
	employees, err := env.employeesByID(ctx, empIDs)
	if err != nil {
		return nil, err
	}
	rows := make([]AttendanceRow, len(records))
	for i, rec := range records {
		e := employees[rec.EmployeeID]
		rows[i] = AttendanceRow{AttendanceRecord: rec, EmployeeName: e.Name, EmployeeCode: e.EmployeeCode}
	}

	msg := fmt.Sprintf("%s %s 출퇴근 기록 %d건을 조회했습니다", scope.Name, period, len(rows))
	out := list("attendance_records", withScope(msg, scope), rows)
	out.Period = &period
	out.Store = &scope
	return out, nil
}

// writeTarget loads the employee a write refers to and picks the store the
// row belongs to: explicit input, then the employee's store, then the caller's.
func (env *env) writeTarget(ctx context.Context, employeeID, storeID, storeName string) (models.Employee, string, error) {
	rows, err := env.stores.Employees.Find(ctx, storage.Where(storage.Eq("id", strings.TrimSpace(employeeID))).WithLimit(1))
	if err != nil {
		return models.Employee{}, "", err
	}
	if len(rows) == 0 {
		return models.Employee{}, "", invalid("직원 %q를 찾을 수 없습니다", employeeID)
	}
	emp := rows[0]

	if strings.TrimSpace(storeID) != "" || strings.TrimSpace(storeName) != "" {
		scope, err := env.resolveStore(ctx, storeID, storeName)
		if err != nil {
			return models.Employee{}, "", err
		}
		if !scope.Defaulted {
			return emp, scope.ID, nil
		}
	}
	if emp.StoreID != "" {
		return emp, emp.StoreID, nil
	}
	return emp, env.caller.StoreID, nil
}

type createRecordRequest struct {
	EmployeeID string `json:"employee_id"`
	RecordType string `json:"record_type"`
	RecordedAt string `json:"recorded_at"`
	Memo       string `json:"memo"`
	StoreID    string `json:"store_id"`
	StoreName  string `json:"store_name"`
}

func (r *createRecordRequest) validate() error {
	switch models.AttendanceType(r.RecordType) {
	case models.AttendanceClockIn, models.AttendanceClockOut:
		return nil
	}
	return invalid("record_type은 clock_in 또는 clock_out이어야 합니다")
}

func (r *createRecordRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	emp, storeID, err := env.writeTarget(ctx, r.EmployeeID, r.StoreID, r.StoreName)
	if err != nil {
		return nil, err
	}

	recordedAt := env.dates.Now()
	if strings.TrimSpace(r.RecordedAt) != "" {
		recordedAt, err = env.dates.ParseTimestamp(r.RecordedAt, "")
		if err != nil {
			return nil, invalid("recorded_at: %v", err)
		}
	}

	rec := models.AttendanceRecord{
		ID:         env.newID(),
		EmployeeID: emp.ID,
		StoreID:    storeID,
		RecordType: models.AttendanceType(r.RecordType),
		RecordedAt: recordedAt,
		WorkDate:   env.dates.LocalDate(recordedAt),
		Memo:       strings.TrimSpace(r.Memo),
		CreatedAt:  env.dates.Now(),
	}
	if err := env.stores.AttendanceRecords.Insert(ctx, &rec); err != nil {
		return nil, err
	}

	label := "출근"
	if rec.RecordType == models.AttendanceClockOut {
		label = "퇴근"
	}
	one := 1
	return &Envelope{
		Message:  fmt.Sprintf("%s님의 %s 기록을 %s에 등록했습니다", emp.Name, label, recordedAt.In(env.dates.Location()).Format("2006-01-02 15:04")),
		DataType: "attendance_record",
		Data:     AttendanceRow{AttendanceRecord: rec, EmployeeName: emp.Name, EmployeeCode: emp.EmployeeCode},
		Count:    &one,
	}, nil
}

type createSessionRequest struct {
	EmployeeID   string `json:"employee_id"`
	WorkDate     string `json:"work_date"`
	ClockIn      string `json:"clock_in"`
	ClockOut     string `json:"clock_out"`
	BreakMinutes int    `json:"break_minutes"`
	StoreID      string `json:"store_id"`
	StoreName    string `json:"store_name"`
}

func (r *createSessionRequest) validate() error {
	if r.BreakMinutes < 0 {
		return invalid("break_minutes는 0 이상이어야 합니다")
	}
	return nil
}

// isClockOnly reports whether raw carries a time of day without a date.
func isClockOnly(raw string) bool {
	raw = strings.TrimSpace(raw)
	return len(raw) <= len("15:04:05") && strings.Contains(raw, ":")
}

func (r *createSessionRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	emp, storeID, err := env.writeTarget(ctx, r.EmployeeID, r.StoreID, r.StoreName)
	if err != nil {
		return nil, err
	}

	workDate := env.dates.NormalizeDate(r.WorkDate)
	clockIn, err := env.dates.ParseTimestamp(r.ClockIn, workDate)
	if err != nil {
		return nil, invalid("clock_in: %v", err)
	}
	clockOut, err := env.dates.ParseTimestamp(r.ClockOut, workDate)
	if err != nil {
		return nil, invalid("clock_out: %v", err)
	}
	if !clockOut.After(clockIn) && isClockOnly(r.ClockOut) {
		// Overnight shift.
		clockOut = clockOut.Add(24 * time.Hour)
	}
	if !clockOut.After(clockIn) {
		return nil, invalid("clock_out은 clock_in 이후여야 합니다")
	}

	session := models.AttendanceSession{
		ID:           env.newID(),
		EmployeeID:   emp.ID,
		StoreID:      storeID,
		WorkDate:     workDate,
		ClockIn:      &clockIn,
		ClockOut:     &clockOut,
		BreakMinutes: r.BreakMinutes,
		CreatedAt:    env.dates.Now(),
	}
	session.WorkedMinutes = session.Minutes()
	if err := env.stores.AttendanceSessions.Insert(ctx, &session); err != nil {
		return nil, err
	}

	one := 1
	return &Envelope{
		Message: fmt.Sprintf("%s님의 %s 근무(%.2f시간)를 등록했습니다",
			emp.Name, workDate, minutesToHours(session.WorkedMinutes)),
		DataType: "attendance_session",
		Data:     session,
		Count:    &one,
	}, nil
}
