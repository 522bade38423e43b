package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// maxPipelineEmployees bounds the employee set of a composite operation.
const maxPipelineEmployees = 200

// StoreScope is the store an operation ran against.
type StoreScope struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Defaulted bool   `json:"defaulted,omitempty"`
	Note      string `json:"note,omitempty"`
}

// All reports whether the scope spans every store.
func (s StoreScope) All() bool {
	return s.ID == ""
}

func (s StoreScope) filter(column string) []storage.Filter {
	if s.All() {
		return nil
	}
	return []storage.Filter{storage.Eq(column, s.ID)}
}

func storeTexts(s models.Store) []string { return []string{s.Name, s.Code} }

// resolveStore picks the store for a store-scoped operation: an existing id,
// else an exact or single fuzzy name match (also tried after an id miss),
// else the caller's default store.
// Without a default store the scope covers every store.
func (env *env) resolveStore(ctx context.Context, storeID, storeName string) (StoreScope, error) {
	storeID = strings.TrimSpace(storeID)
	storeName = strings.TrimSpace(storeName)
	var note string

	if storeID != "" {
		rows, err := env.stores.Stores.Find(ctx, storage.Where(storage.Eq("id", storeID)).WithLimit(1))
		if err != nil {
			return StoreScope{}, err
		}
		if len(rows) == 1 {
			return StoreScope{ID: rows[0].ID, Name: rows[0].Name}, nil
		}
		note = fmt.Sprintf("매장 id %q를 찾을 수 없습니다", storeID)
	}

	if storeName != "" {
		rows, err := searchRows(ctx, env.stores.Stores, storage.Query{Limit: 20}, storeName, []string{"name", "code"}, storeTexts)
		if err != nil {
			return StoreScope{}, err
		}
		if store, ok := pickOne(rows, storeName, storeTexts); ok {
			return StoreScope{ID: store.ID, Name: store.Name}, nil
		}
		if note != "" {
			note += ". "
		}
		if len(rows) == 0 {
			note += fmt.Sprintf("%q와 일치하는 매장이 없습니다", storeName)
		} else {
			names := make([]string, 0, len(rows))
			for _, r := range rows {
				names = append(names, r.Name)
			}
			note += fmt.Sprintf("%q와 일치하는 매장이 여러 곳입니다(%s)", storeName, strings.Join(names, ", "))
		}
	}

	if env.caller.HasStore() {
		name := env.caller.StoreName
		if name == "" {
			name = env.caller.StoreID
		}
		scope := StoreScope{ID: env.caller.StoreID, Name: name, Defaulted: true}
		if note != "" {
			scope.Note = note + ". 기본 매장(" + name + ") 기준으로 조회했습니다"
		} else {
			scope.Note = "기본 매장(" + name + ") 기준으로 조회했습니다"
		}
		return scope, nil
	}

	scope := StoreScope{Name: "전체 매장", Defaulted: true, Note: "기본 매장이 없어 전체 매장 기준으로 조회했습니다"}
	if note != "" {
		scope.Note = note + ". " + scope.Note
	}
	return scope, nil
}

// employeeFilter selects the employee set that composite operations start from.
type employeeFilter struct {
	ID             string
	Name           string
	Classification string
	Status         string
	StoreID        string
}

func (f employeeFilter) personal() bool {
	return strings.TrimSpace(f.ID) != "" || strings.TrimSpace(f.Name) != ""
}

func employeeTexts(e models.Employee) []string {
	return []string{e.Name, e.EmployeeCode, e.Phone}
}

// resolveEmployees returns the employees matching f. An id takes precedence
// over a name search.
func (env *env) resolveEmployees(ctx context.Context, f employeeFilter, limit int) ([]models.Employee, error) {
	q := storage.Query{Limit: limit}
	if c := filterValue(f.Classification); c != "" {
		q = q.And(storage.Eq("contract_classification", c))
	}
	if s := filterValue(f.Status); s != "" {
		q = q.And(storage.Eq("employment_status", s))
	}
	if id := strings.TrimSpace(f.StoreID); id != "" {
		q = q.And(storage.Eq("store_id", id))
	}

	if id := strings.TrimSpace(f.ID); id != "" {
		return env.stores.Employees.Find(ctx, q.And(storage.Eq("id", id)))
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		return searchRows(ctx, env.stores.Employees, q, name, []string{"name", "employee_code", "phone"}, employeeTexts)
	}
	return env.stores.Employees.Find(ctx, q)
}

// employeesByID batch-loads employees for enrichment.
func (env *env) employeesByID(ctx context.Context, ids []string) (map[string]models.Employee, error) {
	out := make(map[string]models.Employee, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := env.stores.Employees.Find(ctx, storage.Where(storage.In("id", unique(ids)...)))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// storesByID batch-loads stores for enrichment.
func (env *env) storesByID(ctx context.Context, ids []string) (map[string]models.Store, error) {
	out := make(map[string]models.Store, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := env.stores.Stores.Find(ctx, storage.Where(storage.In("id", unique(ids)...)))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// EmployeeRef is the parent identity carried by every composite row.
type EmployeeRef struct {
	EmployeeID             string `json:"employee_id"`
	EmployeeCode           string `json:"employee_code"`
	EmployeeName           string `json:"employee_name"`
	StoreID                string `json:"store_id,omitempty"`
	ContractClassification string `json:"contract_classification,omitempty"`
}

func refOf(e models.Employee) EmployeeRef {
	return EmployeeRef{
		EmployeeID:             e.ID,
		EmployeeCode:           e.EmployeeCode,
		EmployeeName:           e.Name,
		StoreID:                e.StoreID,
		ContractClassification: string(e.ContractClassification),
	}
}

func candidatesOf[T any](rows []T, fn func(T) Candidate) []Candidate {
	out := make([]Candidate, 0, len(rows))
	for i, r := range rows {
		if i == 5 {
			break
		}
		out = append(out, fn(r))
	}
	return out
}

// withScope appends the store note to a message when defaulting happened.
func withScope(message string, scope StoreScope) string {
	if scope.Note == "" {
		return message
	}
	return message + " (" + scope.Note + ")"
}
