package operations

import (
	"context"
	"fmt"
	"sort"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// contractSet is the middle stage of the employee -> contract -> leaf pipeline.
type contractSet struct {
	employees map[string]models.Employee
	contracts []models.Contract
	byID      map[string]models.Contract
}

func (s contractSet) ids() []string {
	ids := make([]string, len(s.contracts))
	for i, c := range s.contracts {
		ids[i] = c.ID
	}
	return ids
}

// parent returns the employee identity for a contract, stamped with the
// contract's classification.
func (s contractSet) parent(contractID string) (EmployeeRef, models.Contract, bool) {
	contract, ok := s.byID[contractID]
	if !ok {
		return EmployeeRef{}, models.Contract{}, false
	}
	emp, ok := s.employees[contract.EmployeeID]
	if !ok {
		return EmployeeRef{}, models.Contract{}, false
	}
	ref := refOf(emp)
	if contract.ContractClassification != "" {
		ref.ContractClassification = string(contract.ContractClassification)
	}
	return ref, contract, true
}

// loadContracts runs the first two pipeline stages: the employee set, then a
// single batched fetch of their contracts.
func (env *env) loadContracts(ctx context.Context, f employeeFilter) (contractSet, error) {
	set := contractSet{employees: map[string]models.Employee{}, byID: map[string]models.Contract{}}

	employees, err := env.resolveEmployees(ctx, f, maxPipelineEmployees)
	if err != nil {
		return set, err
	}
	if len(employees) == 0 {
		return set, nil
	}
	ids := make([]string, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
		set.employees[e.ID] = e
	}

	contracts, err := env.stores.Contracts.Find(ctx, storage.Where(storage.In("employee_id", ids...)))
	if err != nil {
		return set, err
	}
	set.contracts = contracts
	for _, c := range contracts {
		set.byID[c.ID] = c
	}
	return set, nil
}

func notFoundEmployees(f employeeFilter) *Envelope {
	target := f.Name
	if f.ID != "" {
		target = f.ID
	}
	if target == "" {
		return notFound("조건에 맞는 직원이 없습니다", nil)
	}
	return notFound(fmt.Sprintf("%q와 일치하는 직원이 없습니다", target), nil)
}

// ContractRow is one contract with its employee.
type ContractRow struct {
	EmployeeRef
	ContractID string `json:"contract_id"`
	WageType   string `json:"wage_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
	Status     string `json:"status"`
}

type contractsRequest struct {
	EmployeeID             string `json:"employee_id"`
	EmployeeName           string `json:"employee_name"`
	ContractClassification string `json:"contract_classification"`
	Limit                  int    `json:"limit"`
}

func (r *contractsRequest) validate() error { return nil }

func (r *contractsRequest) filter() employeeFilter {
	return employeeFilter{ID: r.EmployeeID, Name: r.EmployeeName, Classification: r.ContractClassification}
}

func (r *contractsRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	set, err := env.loadContracts(ctx, r.filter())
	if err != nil {
		return nil, err
	}
	if len(set.employees) == 0 && r.filter().personal() {
		return notFoundEmployees(r.filter()), nil
	}

	rows := make([]ContractRow, 0, len(set.contracts))
	for _, c := range set.contracts {
		ref, _, ok := set.parent(c.ID)
		if !ok {
			continue
		}
		rows = append(rows, ContractRow{
			EmployeeRef: ref,
			ContractID:  c.ID,
			WageType:    c.WageType,
			StartDate:   c.StartDate,
			EndDate:     c.EndDate,
			Status:      c.Status,
		})
	}
	rows = truncate(rows, limitOrDefault(r.Limit))
	return list("employee_contracts", fmt.Sprintf("근로계약 %d건을 조회했습니다", len(rows)), rows), nil
}

// ScheduleRow is one weekly shift with its employee.
type ScheduleRow struct {
	EmployeeRef
	ContractID   string `json:"contract_id"`
	DayOfWeek    int    `json:"day_of_week"`
	DayName      string `json:"day_name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	BreakMinutes int    `json:"break_minutes"`
}

type schedulesRequest struct {
	EmployeeID             string `json:"employee_id"`
	EmployeeName           string `json:"employee_name"`
	ContractClassification string `json:"contract_classification"`
	DayOfWeek              string `json:"day_of_week"`
	Limit                  int    `json:"limit"`
}

func (r *schedulesRequest) validate() error { return nil }

func (r *schedulesRequest) filter() employeeFilter {
	return employeeFilter{ID: r.EmployeeID, Name: r.EmployeeName, Classification: r.ContractClassification}
}

func weekdayIndex(name string) int {
	for i, d := range catalog.Weekdays {
		if d == name {
			return i
		}
	}
	return -1
}

func (r *schedulesRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	set, err := env.loadContracts(ctx, r.filter())
	if err != nil {
		return nil, err
	}
	if len(set.employees) == 0 && r.filter().personal() {
		return notFoundEmployees(r.filter()), nil
	}

	q := storage.Where(storage.In("contract_id", set.ids()...))
	if r.DayOfWeek != "" {
		q = q.And(storage.Eq("day_of_week", weekdayIndex(r.DayOfWeek)))
	}
	schedules, err := env.stores.Schedules.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	rows := make([]ScheduleRow, 0, len(schedules))
	for _, s := range schedules {
		ref, _, ok := set.parent(s.ContractID)
		if !ok {
			continue
		}
		day := ""
		if s.DayOfWeek >= 0 && s.DayOfWeek < len(catalog.Weekdays) {
			day = catalog.Weekdays[s.DayOfWeek]
		}
		rows = append(rows, ScheduleRow{
			EmployeeRef:  ref,
			ContractID:   s.ContractID,
			DayOfWeek:    s.DayOfWeek,
			DayName:      day,
			StartTime:    s.StartTime,
			EndTime:      s.EndTime,
			BreakMinutes: s.BreakMinutes,
		})
	}
	rows = truncate(rows, limitOrDefault(r.Limit))
	return list("work_schedules", fmt.Sprintf("근무 스케줄 %d건을 조회했습니다", len(rows)), rows), nil
}

// SalaryRow is one salary component with its employee.
type SalaryRow struct {
	EmployeeRef
	ContractID string       `json:"contract_id"`
	WageType   string       `json:"wage_type"`
	Kind       string       `json:"kind"`
	Name       string       `json:"name"`
	Amount     models.Money `json:"amount"`
}

// SalaryTotal is the monthly figure for one employee. Hourly rates are
// reported but not summed.
type SalaryTotal struct {
	EmployeeID   string       `json:"employee_id"`
	EmployeeName string       `json:"employee_name"`
	Earnings     models.Money `json:"earnings"`
	Deductions   models.Money `json:"deductions"`
	Net          models.Money `json:"net"`
	HourlyRate   models.Money `json:"hourly_rate,omitempty"`
}

type salariesRequest struct {
	EmployeeID             string `json:"employee_id"`
	EmployeeName           string `json:"employee_name"`
	ContractClassification string `json:"contract_classification"`
	Limit                  int    `json:"limit"`
}

func (r *salariesRequest) validate() error { return nil }

func (r *salariesRequest) filter() employeeFilter {
	return employeeFilter{ID: r.EmployeeID, Name: r.EmployeeName, Classification: r.ContractClassification}
}

func (r *salariesRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	set, err := env.loadContracts(ctx, r.filter())
	if err != nil {
		return nil, err
	}
	if len(set.employees) == 0 && r.filter().personal() {
		return notFoundEmployees(r.filter()), nil
	}

	components, err := env.stores.Salaries.Find(ctx, storage.Where(storage.In("contract_id", set.ids()...)))
	if err != nil {
		return nil, err
	}

	totals := map[string]*SalaryTotal{}
	var order []string
	rows := make([]SalaryRow, 0, len(components))
	for _, c := range components {
		ref, contract, ok := set.parent(c.ContractID)
		if !ok {
			continue
		}
		rows = append(rows, SalaryRow{
			EmployeeRef: ref,
			ContractID:  c.ContractID,
			WageType:    contract.WageType,
			Kind:        c.Kind,
			Name:        c.Name,
			Amount:      c.Amount,
		})

		total, ok := totals[ref.EmployeeID]
		if !ok {
			total = &SalaryTotal{EmployeeID: ref.EmployeeID, EmployeeName: ref.EmployeeName}
			totals[ref.EmployeeID] = total
			order = append(order, ref.EmployeeID)
		}
		switch c.Kind {
		case "deduction":
			total.Deductions += c.Amount
		case "hourly":
			total.HourlyRate = c.Amount
		default:
			total.Earnings += c.Amount
		}
		total.Net = total.Earnings - total.Deductions
	}

	summary := make([]SalaryTotal, 0, len(order))
	for _, id := range order {
		summary = append(summary, *totals[id])
	}
	rows = truncate(rows, limitOrDefault(r.Limit))
	out := list("employee_salaries", fmt.Sprintf("급여 항목 %d건을 조회했습니다", len(rows)), rows)
	out.Summary = summary
	return out, nil
}

// PayslipRow is one payslip with its employee.
type PayslipRow struct {
	EmployeeRef
	PayslipID       string       `json:"payslip_id"`
	PayMonth        string       `json:"pay_month"`
	PaymentDate     string       `json:"payment_date"`
	GrossPay        models.Money `json:"gross_pay"`
	TotalDeductions models.Money `json:"total_deductions"`
	NetPay          models.Money `json:"net_pay"`
}

// PayslipSummary totals the returned payslips.
type PayslipSummary struct {
	GrossPay        models.Money `json:"gross_pay"`
	TotalDeductions models.Money `json:"total_deductions"`
	NetPay          models.Money `json:"net_pay"`
}

type payslipsRequest struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	DateRange    string `json:"date_range"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Limit        int    `json:"limit"`
}

func (r *payslipsRequest) validate() error { return nil }

func (r *payslipsRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	f := employeeFilter{ID: r.EmployeeID, Name: r.EmployeeName}
	period := env.dates.ResolveInput(r.DateRange, r.StartDate, r.EndDate, datetime.PeriodThisMonth)

	employees, err := env.resolveEmployees(ctx, f, maxPipelineEmployees)
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 && f.personal() {
		return notFoundEmployees(f), nil
	}
	byID := make(map[string]models.Employee, len(employees))
	ids := make([]string, len(employees))
	for i, e := range employees {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	q := storage.Where(storage.In("employee_id", ids...)).
		And(storage.Between("payment_date", period.Start, period.End)...)
	payslips, err := env.stores.Payslips.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	rows := make([]PayslipRow, 0, len(payslips))
	for _, p := range payslips {
		emp, ok := byID[p.EmployeeID]
		if !ok {
			continue
		}
		rows = append(rows, PayslipRow{
			EmployeeRef:     refOf(emp),
			PayslipID:       p.ID,
			PayMonth:        p.PayMonth,
			PaymentDate:     p.PaymentDate,
			GrossPay:        p.GrossPay,
			TotalDeductions: p.TotalDeductions,
			NetPay:          p.NetPay,
		})
	}
	matched := len(rows)
	rows = truncate(rows, limitOrDefault(r.Limit))

	var summary PayslipSummary
	for _, row := range rows {
		summary.GrossPay += row.GrossPay
		summary.TotalDeductions += row.TotalDeductions
		summary.NetPay += row.NetPay
	}

	message := fmt.Sprintf("%s 기간 급여명세서 %d건을 조회했습니다", period, len(rows))
	if matched > len(rows) {
		message = fmt.Sprintf("%s 기간 급여명세서 %d건 중 최근 %d건을 조회했습니다", period, matched, len(rows))
	}
	out := list("payslips", message, rows)
	out.Summary = summary
	out.Period = &period
	return out, nil
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// sortedKeys returns map keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
