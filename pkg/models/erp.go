package models

import "time"

// Money is an amount in won. Sums are always integer.
type Money = int64

// ContractClassification is the employment contract class.
type ContractClassification string

const (
	ClassificationRegular  ContractClassification = "정직원"
	ClassificationContract ContractClassification = "계약직"
	ClassificationPartTime ContractClassification = "아르바이트"
)

// EmploymentStatus is the current employment state of an employee.
type EmploymentStatus string

const (
	StatusEmployed EmploymentStatus = "재직"
	StatusOnLeave  EmploymentStatus = "휴직"
	StatusResigned EmploymentStatus = "퇴사"
)

// AttendanceType distinguishes clock-in and clock-out stamps.
type AttendanceType string

const (
	AttendanceClockIn  AttendanceType = "clock_in"
	AttendanceClockOut AttendanceType = "clock_out"
)

// Store is a franchise location.
type Store struct {
	ID        string    `json:"id" yaml:"id" db:"id"`
	Code      string    `json:"code" yaml:"code" db:"code"`
	Name      string    `json:"name" yaml:"name" db:"name"`
	Address   string    `json:"address,omitempty" yaml:"address" db:"address"`
	PartnerID string    `json:"partner_id,omitempty" yaml:"partner_id" db:"partner_id"`
	Phone     string    `json:"phone,omitempty" yaml:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}

// BusinessPartner is a franchisee, supplier or other counterparty.
type BusinessPartner struct {
	ID             string    `json:"id" yaml:"id" db:"id"`
	Code           string    `json:"code" yaml:"code" db:"code"`
	Name           string    `json:"name" yaml:"name" db:"name"`
	BusinessNumber string    `json:"business_number,omitempty" yaml:"business_number" db:"business_number"`
	Representative string    `json:"representative,omitempty" yaml:"representative" db:"representative"`
	PartnerType    string    `json:"partner_type" yaml:"partner_type" db:"partner_type"`
	Status         string    `json:"status" yaml:"status" db:"status"`
	Phone          string    `json:"phone,omitempty" yaml:"phone" db:"phone"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}

// Employee is a person employed at one store.
type Employee struct {
	ID                     string                 `json:"id" yaml:"id" db:"id"`
	EmployeeCode           string                 `json:"employee_code" yaml:"employee_code" db:"employee_code"`
	Name                   string                 `json:"name" yaml:"name" db:"name"`
	StoreID                string                 `json:"store_id" yaml:"store_id" db:"store_id"`
	Position               string                 `json:"position,omitempty" yaml:"position" db:"position"`
	ContractClassification ContractClassification `json:"contract_classification" yaml:"contract_classification" db:"contract_classification"`
	EmploymentStatus       EmploymentStatus       `json:"employment_status" yaml:"employment_status" db:"employment_status"`
	Phone                  string                 `json:"phone,omitempty" yaml:"phone" db:"phone"`
	HireDate               string                 `json:"hire_date,omitempty" yaml:"hire_date" db:"hire_date"`
	CreatedAt              time.Time              `json:"created_at" yaml:"created_at" db:"created_at"`
}

// Contract is an employment contract. Schedules and salary components hang off it.
type Contract struct {
	ID                     string                 `json:"id" yaml:"id" db:"id"`
	EmployeeID             string                 `json:"employee_id" yaml:"employee_id" db:"employee_id"`
	ContractClassification ContractClassification `json:"contract_classification" yaml:"contract_classification" db:"contract_classification"`
	WageType               string                 `json:"wage_type" yaml:"wage_type" db:"wage_type"`
	StartDate              string                 `json:"start_date" yaml:"start_date" db:"start_date"`
	EndDate                string                 `json:"end_date,omitempty" yaml:"end_date" db:"end_date"`
	Status                 string                 `json:"status" yaml:"status" db:"status"`
	CreatedAt              time.Time              `json:"created_at" yaml:"created_at" db:"created_at"`
}

// WorkSchedule is one weekly shift of a contract. DayOfWeek is 0 for Sunday.
type WorkSchedule struct {
	ID           string    `json:"id" yaml:"id" db:"id"`
	ContractID   string    `json:"contract_id" yaml:"contract_id" db:"contract_id"`
	DayOfWeek    int       `json:"day_of_week" yaml:"day_of_week" db:"day_of_week"`
	StartTime    string    `json:"start_time" yaml:"start_time" db:"start_time"`
	EndTime      string    `json:"end_time" yaml:"end_time" db:"end_time"`
	BreakMinutes int       `json:"break_minutes" yaml:"break_minutes" db:"break_minutes"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}

// SalaryComponent is one pay line of a contract (base, hourly, allowance, deduction).
type SalaryComponent struct {
	ID         string    `json:"id" yaml:"id" db:"id"`
	ContractID string    `json:"contract_id" yaml:"contract_id" db:"contract_id"`
	Kind       string    `json:"kind" yaml:"kind" db:"kind"`
	Name       string    `json:"name" yaml:"name" db:"name"`
	Amount     Money     `json:"amount" yaml:"amount" db:"amount"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}

// AttendanceRecord is a single clock stamp.
type AttendanceRecord struct {
	ID         string         `json:"id" yaml:"id" db:"id"`
	EmployeeID string         `json:"employee_id" yaml:"employee_id" db:"employee_id"`
	StoreID    string         `json:"store_id" yaml:"store_id" db:"store_id"`
	RecordType AttendanceType `json:"record_type" yaml:"record_type" db:"record_type"`
	RecordedAt time.Time      `json:"recorded_at" yaml:"recorded_at" db:"recorded_at"`
	WorkDate   string         `json:"work_date" yaml:"work_date" db:"work_date"`
	Memo       string         `json:"memo,omitempty" yaml:"memo" db:"memo"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at" db:"created_at"`
}

// AttendanceSession is a worked shift with both stamps and breaks.
type AttendanceSession struct {
	ID            string     `json:"id" yaml:"id" db:"id"`
	EmployeeID    string     `json:"employee_id" yaml:"employee_id" db:"employee_id"`
	StoreID       string     `json:"store_id" yaml:"store_id" db:"store_id"`
	WorkDate      string     `json:"work_date" yaml:"work_date" db:"work_date"`
	ClockIn       *time.Time `json:"clock_in,omitempty" yaml:"clock_in" db:"clock_in"`
	ClockOut      *time.Time `json:"clock_out,omitempty" yaml:"clock_out" db:"clock_out"`
	BreakMinutes  int        `json:"break_minutes" yaml:"break_minutes" db:"break_minutes"`
	WorkedMinutes int        `json:"worked_minutes" yaml:"worked_minutes" db:"worked_minutes"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at" db:"created_at"`
}

// Minutes returns the worked minutes of the session. When both stamps exist the
// value is derived from them, otherwise the stored figure is used.
func (s AttendanceSession) Minutes() int {
	if s.ClockIn != nil && s.ClockOut != nil && s.ClockOut.After(*s.ClockIn) {
		minutes := int(s.ClockOut.Sub(*s.ClockIn)/time.Minute) - s.BreakMinutes
		if minutes < 0 {
			return 0
		}
		return minutes
	}
	return s.WorkedMinutes
}

// Payslip is a monthly pay statement.
type Payslip struct {
	ID              string    `json:"id" yaml:"id" db:"id"`
	EmployeeID      string    `json:"employee_id" yaml:"employee_id" db:"employee_id"`
	PayMonth        string    `json:"pay_month" yaml:"pay_month" db:"pay_month"`
	PaymentDate     string    `json:"payment_date" yaml:"payment_date" db:"payment_date"`
	GrossPay        Money     `json:"gross_pay" yaml:"gross_pay" db:"gross_pay"`
	TotalDeductions Money     `json:"total_deductions" yaml:"total_deductions" db:"total_deductions"`
	NetPay          Money     `json:"net_pay" yaml:"net_pay" db:"net_pay"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}

// Order is a point-of-sale order at a store.
type Order struct {
	ID             string    `json:"id" yaml:"id" db:"id"`
	StoreID        string    `json:"store_id" yaml:"store_id" db:"store_id"`
	OrderNumber    string    `json:"order_number" yaml:"order_number" db:"order_number"`
	BusinessDate   string    `json:"business_date" yaml:"business_date" db:"business_date"`
	OrderedAt      time.Time `json:"ordered_at" yaml:"ordered_at" db:"ordered_at"`
	Status         string    `json:"status" yaml:"status" db:"status"`
	PaymentMethod  string    `json:"payment_method" yaml:"payment_method" db:"payment_method"`
	TotalAmount    Money     `json:"total_amount" yaml:"total_amount" db:"total_amount"`
	DiscountAmount Money     `json:"discount_amount" yaml:"discount_amount" db:"discount_amount"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at" db:"created_at"`
}
