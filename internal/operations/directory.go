package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

func partnerTexts(p models.BusinessPartner) []string {
	return []string{p.Name, p.Code, p.BusinessNumber}
}

func partnerCandidate(p models.BusinessPartner) Candidate {
	return Candidate{ID: p.ID, Name: p.Name, Code: p.Code}
}

type partnersRequest struct {
	Search      string `json:"search"`
	PartnerType string `json:"partner_type"`
	Status      string `json:"status"`
	Limit       int    `json:"limit"`
}

func (r *partnersRequest) validate() error { return nil }

func (r *partnersRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	q := storage.Query{Limit: limitOrDefault(r.Limit)}
	if v := filterValue(r.PartnerType); v != "" {
		q = q.And(storage.Eq("partner_type", v))
	}
	if v := filterValue(r.Status); v != "" {
		q = q.And(storage.Eq("status", v))
	}

	var (
		rows []models.BusinessPartner
		err  error
	)
	if strings.TrimSpace(r.Search) != "" {
		rows, err = searchRows(ctx, env.stores.Partners, q, r.Search, []string{"name", "code", "business_number"}, partnerTexts)
	} else {
		rows, err = env.stores.Partners.Find(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	return list("business_partners", fmt.Sprintf("거래처 %d건을 조회했습니다", len(rows)), rows), nil
}

type partnerDetailRequest struct {
	ID     string `json:"id"`
	Search string `json:"search"`
}

func (r *partnerDetailRequest) validate() error {
	if strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Search) == "" {
		return invalid("id 또는 search 중 하나는 필요합니다")
	}
	return nil
}

func (r *partnerDetailRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	if id := strings.TrimSpace(r.ID); id != "" {
		rows, err := env.stores.Partners.Find(ctx, storage.Where(storage.Eq("id", id)).WithLimit(1))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return notFound(fmt.Sprintf("id %q에 해당하는 거래처가 없습니다", id), nil), nil
		}
		return list("business_partner", "거래처 정보를 조회했습니다", rows), nil
	}

	rows, err := searchRows(ctx, env.stores.Partners, storage.Query{Limit: 20}, r.Search, []string{"name", "code", "business_number"}, partnerTexts)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return notFound(fmt.Sprintf("%q와 일치하는 거래처가 없습니다", r.Search), nil), nil
	case 1:
		return list("business_partner", "거래처 정보를 조회했습니다", rows), nil
	default:
		return notFound(fmt.Sprintf("%q와 일치하는 거래처가 %d곳입니다. 더 구체적으로 지정해 주세요", r.Search, len(rows)),
			candidatesOf(rows, partnerCandidate)), nil
	}
}

type storesRequest struct {
	Search string `json:"search"`
	Limit  int    `json:"limit"`
}

func (r *storesRequest) validate() error { return nil }

func (r *storesRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	q := storage.Query{Limit: limitOrDefault(r.Limit)}
	var (
		rows []models.Store
		err  error
	)
	if strings.TrimSpace(r.Search) != "" {
		rows, err = searchRows(ctx, env.stores.Stores, q, r.Search, []string{"name", "code"}, storeTexts)
	} else {
		rows, err = env.stores.Stores.Find(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	return list("stores", fmt.Sprintf("매장 %d곳을 조회했습니다", len(rows)), rows), nil
}

// EmployeeView is an employee with the store name resolved.
type EmployeeView struct {
	models.Employee
	StoreName string `json:"store_name,omitempty"`
}

func (env *env) employeeViews(ctx context.Context, rows []models.Employee) ([]EmployeeView, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.StoreID)
	}
	stores, err := env.storesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]EmployeeView, len(rows))
	for i, r := range rows {
		views[i] = EmployeeView{Employee: r, StoreName: stores[r.StoreID].Name}
	}
	return views, nil
}

type employeesRequest struct {
	Search                 string `json:"search"`
	ContractClassification string `json:"contract_classification"`
	EmploymentStatus       string `json:"employment_status"`
	StoreID                string `json:"store_id"`
	Limit                  int    `json:"limit"`
}

func (r *employeesRequest) validate() error { return nil }

func (r *employeesRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	rows, err := env.resolveEmployees(ctx, employeeFilter{
		Name:           r.Search,
		Classification: r.ContractClassification,
		Status:         r.EmploymentStatus,
		StoreID:        r.StoreID,
	}, limitOrDefault(r.Limit))
	if err != nil {
		return nil, err
	}
	views, err := env.employeeViews(ctx, rows)
	if err != nil {
		return nil, err
	}
	return list("employees", fmt.Sprintf("직원 %d명을 조회했습니다", len(views)), views), nil
}

type employeeDetailRequest struct {
	ID     string `json:"id"`
	Search string `json:"search"`
}

func (r *employeeDetailRequest) validate() error {
	if strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Search) == "" {
		return invalid("id 또는 search 중 하나는 필요합니다")
	}
	return nil
}

func employeeCandidate(e models.Employee) Candidate {
	return Candidate{ID: e.ID, Name: e.Name, Code: e.EmployeeCode}
}

func (r *employeeDetailRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	var employee models.Employee
	if id := strings.TrimSpace(r.ID); id != "" {
		rows, err := env.stores.Employees.Find(ctx, storage.Where(storage.Eq("id", id)).WithLimit(1))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return notFound(fmt.Sprintf("id %q에 해당하는 직원이 없습니다", id), nil), nil
		}
		employee = rows[0]
	} else {
		rows, err := env.resolveEmployees(ctx, employeeFilter{Name: r.Search}, 20)
		if err != nil {
			return nil, err
		}
		switch len(rows) {
		case 0:
			return notFound(fmt.Sprintf("%q와 일치하는 직원이 없습니다", r.Search), nil), nil
		case 1:
			employee = rows[0]
		default:
			return notFound(fmt.Sprintf("%q와 일치하는 직원이 %d명입니다. 더 구체적으로 지정해 주세요", r.Search, len(rows)),
				candidatesOf(rows, employeeCandidate)), nil
		}
	}

	views, err := env.employeeViews(ctx, []models.Employee{employee})
	if err != nil {
		return nil, err
	}
	return list("employee", fmt.Sprintf("%s 직원 정보를 조회했습니다", employee.Name), views), nil
}

type countEmployeesRequest struct {
	ContractClassification string `json:"contract_classification"`
	EmploymentStatus       string `json:"employment_status"`
	StoreID                string `json:"store_id"`
}

func (r *countEmployeesRequest) validate() error { return nil }

// EmployeeCount summarizes a head count.
type EmployeeCount struct {
	ByClassification map[string]int `json:"by_classification"`
	ByStatus         map[string]int `json:"by_status"`
}

func (r *countEmployeesRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	rows, err := env.resolveEmployees(ctx, employeeFilter{
		Classification: r.ContractClassification,
		Status:         r.EmploymentStatus,
		StoreID:        r.StoreID,
	}, 0)
	if err != nil {
		return nil, err
	}

	summary := EmployeeCount{ByClassification: map[string]int{}, ByStatus: map[string]int{}}
	for _, e := range rows {
		summary.ByClassification[string(e.ContractClassification)]++
		summary.ByStatus[string(e.EmploymentStatus)]++
	}
	n := len(rows)

	label := "전체"
	if c := filterValue(r.ContractClassification); c != "" {
		label = c
	}
	if s := filterValue(r.EmploymentStatus); s != "" {
		label += " " + s
	}
	return &Envelope{
		Message:  fmt.Sprintf("%s 직원은 %d명입니다", label, n),
		DataType: "employee_count",
		Count:    &n,
		Summary:  summary,
	}, nil
}
