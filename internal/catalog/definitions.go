package catalog

import "github.com/haasonsaas/opsassist/internal/datetime"

// Operation names.
const (
	OpGetBusinessPartners      = "get_business_partners"
	OpGetBusinessPartnerDetail = "get_business_partner_detail"
	OpGetStores                = "get_stores"
	OpGetEmployees             = "get_employees"
	OpGetEmployeeDetail        = "get_employee_detail"
	OpCountEmployees           = "count_employees"
	OpGetEmployeeContracts     = "get_employee_contracts"
	OpGetWorkSchedules         = "get_work_schedules"
	OpGetEmployeeSalaries      = "get_employee_salaries"
	OpGetPayslips              = "get_payslips"
	OpGetSalesSummary          = "get_sales_summary"
	OpGetOrders                = "get_orders"
	OpGetWorkHours             = "get_work_hours"
	OpGetAttendanceRecords     = "get_attendance_records"
	OpCreateAttendanceRecord   = "create_attendance_record"
	OpCreateAttendanceSession  = "create_attendance_session"
	OpReportUnsupported        = "report_unsupported_request"
)

// DefaultLimit applies when a list operation receives no limit.
const DefaultLimit = 10

// Closed vocabularies.
var (
	PartnerTypes            = []string{"가맹점", "공급업체", "협력업체", AllValue}
	PartnerStatuses         = []string{"활성", "비활성", AllValue}
	ContractClassifications = []string{"정직원", "계약직", "아르바이트", AllValue}
	EmploymentStatuses      = []string{"재직", "휴직", "퇴사", AllValue}
	OrderStatuses           = []string{"completed", "cancelled", "refunded", AllValue}
	PaymentMethods          = []string{"card", "cash", "transfer", "mobile", AllValue}
	RecordTypes             = []string{"clock_in", "clock_out", AllValue}
	Weekdays                = []string{"일", "월", "화", "수", "목", "금", "토"}
)

func periodTokens() []string {
	periods := datetime.Periods()
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = string(p)
	}
	return out
}

func limitParam() Param {
	return Param{Name: "limit", Type: TypeNumber, Description: "Maximum number of rows to return (default 10)."}
}

func enumParam(name string, values []string, description string) Param {
	return Param{Name: name, Type: TypeEnum, AllowedValues: values, Description: description}
}

func stringParam(name, description string) Param {
	return Param{Name: name, Type: TypeString, Description: description}
}

func requiredString(name, description string) Param {
	return Param{Name: name, Type: TypeString, Required: true, Description: description}
}

func periodParams() []Param {
	return []Param{
		enumParam("date_range", periodTokens(), "Relative period. Use custom together with start_date and end_date."),
		stringParam("start_date", "Start date for a custom period (YYYY-MM-DD or MM-DD)."),
		stringParam("end_date", "End date for a custom period (YYYY-MM-DD or MM-DD)."),
	}
}

func storeParams() []Param {
	return []Param{
		stringParam("store_id", "Store id. Takes precedence over store_name."),
		stringParam("store_name", "Store name or part of it. The caller's own store is used when omitted."),
	}
}

func employeeParams() []Param {
	return []Param{
		stringParam("employee_id", "Employee id. Takes precedence over employee_name."),
		stringParam("employee_name", "Employee name, code or part of it."),
	}
}

func join(groups ...[]Param) []Param {
	var out []Param
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Definitions returns the built-in operation set.
func Definitions() []Definition {
	classification := enumParam("contract_classification", ContractClassifications, "Contract class: 정직원, 계약직 or 아르바이트. ALL for every class.")

	return []Definition{
		{
			Name:        OpGetBusinessPartners,
			Description: "List business partners (거래처) such as franchisees and suppliers, newest first.",
			Params: []Param{
				stringParam("search", "Name, code or business number fragment."),
				enumParam("partner_type", PartnerTypes, "Partner type filter."),
				enumParam("status", PartnerStatuses, "Partner status filter."),
				limitParam(),
			},
		},
		{
			Name:        OpGetBusinessPartnerDetail,
			Description: "Get one business partner by id, or by a name/code search that matches exactly one partner.",
			Params: []Param{
				stringParam("id", "Partner id. Takes precedence over search."),
				stringParam("search", "Name or code fragment."),
			},
		},
		{
			Name:        OpGetStores,
			Description: "List stores (매장), newest first.",
			Params: []Param{
				stringParam("search", "Store name or code fragment."),
				limitParam(),
			},
		},
		{
			Name:        OpGetEmployees,
			Description: "List employees (직원) with optional name, classification and status filters, newest first.",
			Params: []Param{
				stringParam("search", "Name, employee code or phone fragment."),
				classification,
				enumParam("employment_status", EmploymentStatuses, "Employment status: 재직, 휴직 or 퇴사."),
				stringParam("store_id", "Restrict to one store."),
				limitParam(),
			},
		},
		{
			Name:        OpGetEmployeeDetail,
			Description: "Get one employee by id, or by a name/code search that matches exactly one employee.",
			Params: []Param{
				stringParam("id", "Employee id. Takes precedence over search."),
				stringParam("search", "Name or employee code fragment."),
			},
		},
		{
			Name:        OpCountEmployees,
			Description: "Count employees (인원수) matching the classification and status filters, with a per-class breakdown.",
			Params: []Param{
				classification,
				enumParam("employment_status", EmploymentStatuses, "Employment status filter."),
				stringParam("store_id", "Restrict to one store."),
			},
		},
		{
			Name:        OpGetEmployeeContracts,
			Description: "List employment contracts (근로계약), one row per contract with the employee's identity.",
			Params:      join(employeeParams(), []Param{classification, limitParam()}),
		},
		{
			Name:        OpGetWorkSchedules,
			Description: "List weekly work schedules (근무 스케줄), one row per shift with the employee's identity.",
			Params: join(employeeParams(), []Param{
				classification,
				enumParam("day_of_week", Weekdays, "Weekday filter."),
				limitParam(),
			}),
		},
		{
			Name:        OpGetEmployeeSalaries,
			Description: "List salary components (급여 항목), one row per component with the employee's identity and a per-employee monthly total.",
			Params:      join(employeeParams(), []Param{classification, limitParam()}),
		},
		{
			Name:        OpGetPayslips,
			Description: "List payslips (급여명세서) whose payment date falls in the period, one row per payslip with the employee's identity.",
			Params:      join(employeeParams(), periodParams(), []Param{limitParam()}),
		},
		{
			Name:        OpGetSalesSummary,
			Description: "Summarize sales (매출) for a store over a period: totals, order counts, per payment method and per day. Defaults to the caller's store and today.",
			Params:      join(storeParams(), periodParams()),
		},
		{
			Name:        OpGetOrders,
			Description: "List orders (주문) for a store over a period, newest first. Defaults to the caller's store and today.",
			Params: join(storeParams(), []Param{
				enumParam("status", OrderStatuses, "Order status filter."),
				enumParam("payment_method", PaymentMethods, "Payment method filter."),
			}, periodParams(), []Param{limitParam()}),
		},
		{
			Name:        OpGetWorkHours,
			Description: "Total worked hours (근무 시간) per employee over a period from attendance sessions. Defaults to the caller's store and this week.",
			Params:      join(storeParams(), employeeParams(), periodParams()),
		},
		{
			Name:        OpGetAttendanceRecords,
			Description: "List clock-in/clock-out records (출퇴근 기록) over a period, newest first. Defaults to the caller's store and today.",
			Params: join(storeParams(), employeeParams(), []Param{
				enumParam("record_type", RecordTypes, "Stamp type filter."),
			}, periodParams(), []Param{limitParam()}),
		},
		{
			Name:        OpCreateAttendanceRecord,
			Description: "Record a clock-in or clock-out stamp for an employee.",
			Params: join([]Param{
				requiredString("employee_id", "Employee id."),
				{Name: "record_type", Type: TypeEnum, AllowedValues: []string{"clock_in", "clock_out"}, Required: true, Description: "Stamp type."},
				stringParam("recorded_at", "Stamp time (YYYY-MM-DD HH:MM or HH:MM). Defaults to now."),
				stringParam("memo", "Free-form note."),
			}, storeParams()),
			Mutating: true,
		},
		{
			Name:        OpCreateAttendanceSession,
			Description: "Record a completed work session with clock-in, clock-out and break minutes.",
			Params: join([]Param{
				requiredString("employee_id", "Employee id."),
				requiredString("work_date", "Work date (YYYY-MM-DD or MM-DD)."),
				requiredString("clock_in", "Clock-in time (HH:MM or full timestamp)."),
				requiredString("clock_out", "Clock-out time (HH:MM or full timestamp)."),
				{Name: "break_minutes", Type: TypeNumber, Description: "Break minutes (default 0)."},
			}, storeParams()),
			Mutating: true,
		},
		{
			Name:        OpReportUnsupported,
			Description: "Call this when the request cannot be served by any other operation (out of scope, or an unsupported write).",
			Params: []Param{
				requiredString("reason", "Short reason the request is unsupported."),
			},
		},
	}
}

// Default builds the catalog from Definitions. The built-in set is static, so
// a construction failure is a programming error.
func Default() *Catalog {
	c, err := New(Definitions()...)
	if err != nil {
		panic(err)
	}
	return c
}
