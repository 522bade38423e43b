// Package operations executes catalog operations against the ERP store.
//
// Every catalog operation maps to exactly one typed request. Execute decodes
// the loose model input into that request, runs it and always returns a
// serializable result; failures become error payloads rather than Go errors.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// request is one decoded operation input.
type request interface {
	validate() error
	run(ctx context.Context, env *env) (*Envelope, error)
}

// requests is the closed set of operation handlers keyed by catalog name.
var requests = map[string]func() request{
	catalog.OpGetBusinessPartners:      func() request { return &partnersRequest{} },
	catalog.OpGetBusinessPartnerDetail: func() request { return &partnerDetailRequest{} },
	catalog.OpGetStores:                func() request { return &storesRequest{} },
	catalog.OpGetEmployees:             func() request { return &employeesRequest{} },
	catalog.OpGetEmployeeDetail:        func() request { return &employeeDetailRequest{} },
	catalog.OpCountEmployees:           func() request { return &countEmployeesRequest{} },
	catalog.OpGetEmployeeContracts:     func() request { return &contractsRequest{} },
	catalog.OpGetWorkSchedules:         func() request { return &schedulesRequest{} },
	catalog.OpGetEmployeeSalaries:      func() request { return &salariesRequest{} },
	catalog.OpGetPayslips:              func() request { return &payslipsRequest{} },
	catalog.OpGetSalesSummary:          func() request { return &salesSummaryRequest{} },
	catalog.OpGetOrders:                func() request { return &ordersRequest{} },
	catalog.OpGetWorkHours:             func() request { return &workHoursRequest{} },
	catalog.OpGetAttendanceRecords:     func() request { return &attendanceRecordsRequest{} },
	catalog.OpCreateAttendanceRecord:   func() request { return &createRecordRequest{} },
	catalog.OpCreateAttendanceSession:  func() request { return &createSessionRequest{} },
	catalog.OpReportUnsupported:        func() request { return &unsupportedRequest{} },
}

// Handled returns the sorted names of every operation with a handler.
func Handled() []string {
	names := make([]string, 0, len(requests))
	for name := range requests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckParity verifies that the catalog and the handler set name exactly the
// same operations.
func CheckParity(cat *catalog.Catalog) error {
	var missing, extra []string
	for _, name := range cat.Names() {
		if _, ok := requests[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range requests {
		if _, ok := cat.Lookup(name); !ok {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("catalog/executor mismatch: missing handlers %v, unlisted handlers %v", missing, extra)
}

// Executor runs catalog operations.
type Executor struct {
	catalog *catalog.Catalog
	stores  storage.StoreSet
	dates   *datetime.Resolver
	logger  *slog.Logger
	newID   func() string
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator replaces the id source for inserted rows.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New creates an executor and fails when the catalog and handlers disagree.
func New(cat *catalog.Catalog, stores storage.StoreSet, dates *datetime.Resolver, opts ...Option) (*Executor, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	if dates == nil {
		return nil, errors.New("date resolver is required")
	}
	if err := CheckParity(cat); err != nil {
		return nil, err
	}
	e := &Executor{
		catalog: cat,
		stores:  stores,
		dates:   dates,
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the catalog the executor validates against.
func (e *Executor) Catalog() *catalog.Catalog {
	return e.catalog
}

// env carries per-call dependencies into a request.
type env struct {
	stores storage.StoreSet
	dates  *datetime.Resolver
	caller identity.Caller
	newID  func() string
}

// Execute runs one call. It never returns an error and never panics; every
// failure is reported in the result payload with IsError set.
func (e *Executor) Execute(ctx context.Context, caller identity.Caller, call models.OperationCall) (result models.OperationResult) {
	result.CallID = call.CallID

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("operation panicked",
				"operation", call.Name,
				"call_id", call.CallID,
				"panic", r,
				"stack", string(debug.Stack()))
			result.Payload = (&Envelope{
				Message: "작업 실행 중 내부 오류가 발생했습니다",
				Error:   fmt.Sprintf("panic: %v", r),
			}).encode()
			result.IsError = true
		}
	}()

	factory, ok := requests[call.Name]
	if _, listed := e.catalog.Lookup(call.Name); !ok || !listed {
		result.Payload = (&Envelope{
			Message:     fmt.Sprintf("%s: 알 수 없는 작업 %q", UnsupportedPhrase, call.Name),
			Error:       fmt.Sprintf("unknown operation %q", call.Name),
			Unsupported: true,
		}).encode()
		result.IsError = true
		return result
	}

	req := factory()
	warnings, err := e.catalog.Decode(call.Name, call.Input, req)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		e.logger.Warn("operation input rejected", "operation", call.Name, "call_id", call.CallID, "error", err)
		result.Payload = (&Envelope{
			Message:  "입력값이 올바르지 않습니다: " + err.Error(),
			Error:    err.Error(),
			Warnings: warnings,
		}).encode()
		result.IsError = true
		return result
	}

	out, err := req.run(ctx, &env{stores: e.stores, dates: e.dates, caller: caller, newID: e.newID})
	if err != nil {
		level := slog.LevelError
		message := "데이터를 조회하는 중 오류가 발생했습니다"
		if IsInputError(err) {
			level = slog.LevelWarn
			message = "입력값이 올바르지 않습니다: " + err.Error()
		}
		e.logger.Log(ctx, level, "operation failed", "operation", call.Name, "call_id", call.CallID, "error", err)
		result.Payload = (&Envelope{Message: message, Error: err.Error(), Warnings: warnings}).encode()
		result.IsError = true
		return result
	}

	if len(warnings) > 0 {
		out.Warnings = append(out.Warnings, warnings...)
	}
	result.Payload = out.encode()
	return result
}

func limitOrDefault(limit int) int {
	switch {
	case limit <= 0:
		return catalog.DefaultLimit
	case limit > 100:
		return 100
	default:
		return limit
	}
}

// filterValue returns the enum value to filter by, or "" for no filter.
func filterValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, catalog.AllValue) {
		return ""
	}
	return v
}
