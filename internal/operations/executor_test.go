package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

var seoul = datetime.MustLoadLocation("Asia/Seoul")

// fixedNow is Wednesday 2025-03-12 10:00 KST.
var fixedNow = time.Date(2025, 3, 12, 10, 0, 0, 0, seoul)

func at(day string, hhmm string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, seoul)
	if err != nil {
		panic(err)
	}
	return ts
}

type fixture struct {
	stores storage.StoreSet
	exec   *Executor
	ids    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{stores: storage.NewMemoryStores()}
	dates := datetime.NewResolver(seoul).WithClock(func() time.Time { return fixedNow })
	exec, err := New(catalog.Default(), f.stores, dates, WithIDGenerator(func() string {
		f.ids++
		return fmt.Sprintf("new-%d", f.ids)
	}))
	require.NoError(t, err)
	f.exec = exec
	return f
}

func (f *fixture) seed(t *testing.T, fx *storage.Fixtures) {
	t.Helper()
	_, err := storage.Seed(context.Background(), f.stores, fx)
	require.NoError(t, err)
}

func (f *fixture) call(t *testing.T, caller identity.Caller, name, input string) (Envelope, models.OperationResult) {
	t.Helper()
	res := f.exec.Execute(context.Background(), caller, models.OperationCall{CallID: "c1", Name: name, Input: json.RawMessage(input)})
	require.Equal(t, "c1", res.CallID)
	var env Envelope
	require.NoError(t, json.Unmarshal(res.Payload, &env))
	return env, res
}

func baseFixtures() *storage.Fixtures {
	created := fixedNow.Add(-24 * time.Hour)
	fx := &storage.Fixtures{
		Stores: []models.Store{
			{ID: "s1", Code: "GN01", Name: "강남점", CreatedAt: created},
			{ID: "s2", Code: "HD01", Name: "홍대점", CreatedAt: created.Add(time.Minute)},
		},
	}
	for i := 0; i < 7; i++ {
		fx.Employees = append(fx.Employees, models.Employee{
			ID: fmt.Sprintf("e%d", i), EmployeeCode: fmt.Sprintf("EMP%03d", i), Name: fmt.Sprintf("정직원%d", i),
			StoreID: "s1", ContractClassification: models.ClassificationRegular, EmploymentStatus: models.StatusEmployed,
			CreatedAt: created.Add(time.Duration(i) * time.Minute),
		})
	}
	fx.Employees = append(fx.Employees,
		models.Employee{ID: "p1", EmployeeCode: "EMP101", Name: "김민수", StoreID: "s1", ContractClassification: models.ClassificationPartTime, EmploymentStatus: models.StatusEmployed, CreatedAt: created},
		models.Employee{ID: "p2", EmployeeCode: "EMP102", Name: "이영희", StoreID: "s2", ContractClassification: models.ClassificationPartTime, EmploymentStatus: models.StatusEmployed, CreatedAt: created},
		models.Employee{ID: "c1", EmployeeCode: "EMP103", Name: "박지훈", StoreID: "s2", ContractClassification: models.ClassificationContract, EmploymentStatus: models.StatusOnLeave, CreatedAt: created},
	)
	return fx
}

func TestNew_ParityWithCatalog(t *testing.T) {
	assert.Equal(t, catalog.Default().Names(), Handled())
	require.NoError(t, CheckParity(catalog.Default()))

	partial, err := catalog.New(catalog.Definitions()[:3]...)
	require.NoError(t, err)
	_, err = New(partial, storage.NewMemoryStores(), datetime.NewResolver(seoul))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unlisted handlers")
}

func TestExecute_CountEmployeesByClassification(t *testing.T) {
	f := newFixture(t)
	f.seed(t, baseFixtures())

	env, res := f.call(t, identity.Caller{}, catalog.OpCountEmployees, `{"contract_classification":"정직원"}`)
	require.False(t, res.IsError)
	assert.Equal(t, "employee_count", env.DataType)
	require.NotNil(t, env.Count)
	assert.Equal(t, 7, *env.Count)
	assert.Contains(t, env.Message, "7명")
}

func TestExecute_CountEmployeesAllClassifications(t *testing.T) {
	f := newFixture(t)
	f.seed(t, baseFixtures())

	env, _ := f.call(t, identity.Caller{}, catalog.OpCountEmployees, `{"contract_classification":"ALL"}`)
	require.NotNil(t, env.Count)
	assert.Equal(t, 10, *env.Count)
}

func TestExecute_DetailNotFound(t *testing.T) {
	f := newFixture(t)
	f.seed(t, baseFixtures())

	tests := []struct {
		name      string
		operation string
		input     string
	}{
		{"employee search", catalog.OpGetEmployeeDetail, `{"search":"없는사람"}`},
		{"employee id", catalog.OpGetEmployeeDetail, `{"id":"missing"}`},
		{"partner search", catalog.OpGetBusinessPartnerDetail, `{"search":"없는거래처"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, res := f.call(t, identity.Caller{}, tt.operation, tt.input)
			assert.False(t, res.IsError)
			assert.Equal(t, DataNotFound, env.DataType)
		})
	}
}

func TestExecute_DetailAmbiguousOffersCandidates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, baseFixtures())

	env, _ := f.call(t, identity.Caller{}, catalog.OpGetEmployeeDetail, `{"search":"정직원"}`)
	assert.Equal(t, DataNotFound, env.DataType)
	assert.Len(t, env.Candidates, 5)
}

func TestExecute_DetailPrefixNameIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	fx := baseFixtures()
	created := fixedNow.Add(-time.Hour)
	fx.Employees = append(fx.Employees, models.Employee{
		ID: "p3", EmployeeCode: "EMP104", Name: "김민수진", StoreID: "s2",
		ContractClassification: models.ClassificationPartTime, EmploymentStatus: models.StatusEmployed, CreatedAt: created,
	})
	fx.Partners = []models.BusinessPartner{
		{ID: "bp1", Code: "BP001", Name: "한빛상사", CreatedAt: created},
		{ID: "bp2", Code: "BP002", Name: "한빛상사유통", CreatedAt: created},
	}
	f.seed(t, fx)

	tests := []struct {
		name      string
		operation string
		input     string
		wantIDs   []string
	}{
		{"employee", catalog.OpGetEmployeeDetail, `{"search":"김민수"}`, []string{"p1", "p3"}},
		{"partner", catalog.OpGetBusinessPartnerDetail, `{"search":"한빛상사"}`, []string{"bp1", "bp2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, res := f.call(t, identity.Caller{}, tt.operation, tt.input)
			assert.False(t, res.IsError)
			assert.Equal(t, DataNotFound, env.DataType)
			ids := make([]string, 0, len(env.Candidates))
			for _, c := range env.Candidates {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}

	env, _ := f.call(t, identity.Caller{}, catalog.OpGetEmployeeDetail, `{"search":"김민수진"}`)
	assert.Equal(t, "employee", env.DataType)
	assert.Contains(t, env.Message, "김민수진")
}

func TestExecute_DetailFoldsWidthVariants(t *testing.T) {
	f := newFixture(t)
	f.seed(t, baseFixtures())

	// Full-width code only matches through the in-memory folding pass.
	env, res := f.call(t, identity.Caller{}, catalog.OpGetEmployeeDetail, `{"search":"ＥＭＰ１０１"}`)
	require.False(t, res.IsError)
	assert.Equal(t, "employee", env.DataType)
	assert.Contains(t, env.Message, "김민수")
}

func TestExecute_UnknownOperation(t *testing.T) {
	f := newFixture(t)

	env, res := f.call(t, identity.Caller{}, "drop_database", `{}`)
	assert.True(t, res.IsError)
	assert.True(t, env.Unsupported)
	assert.Contains(t, env.Message, UnsupportedPhrase)
}

func TestExecute_InvalidInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		operation string
		input     string
	}{
		{"bad enum", catalog.OpGetEmployees, `{"contract_classification":"임원"}`},
		{"missing required", catalog.OpCreateAttendanceRecord, `{"record_type":"clock_in"}`},
		{"not an object", catalog.OpGetStores, `[1,2]`},
		{"detail without key", catalog.OpGetEmployeeDetail, `{}`},
		{"negative break", catalog.OpCreateAttendanceSession, `{"employee_id":"e0","work_date":"2025-03-12","clock_in":"09:00","clock_out":"18:00","break_minutes":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, res := f.call(t, identity.Caller{}, tt.operation, tt.input)
			assert.True(t, res.IsError)
			assert.NotEmpty(t, env.Error)
			assert.Contains(t, env.Message, "입력값이 올바르지 않습니다")
		})
	}
}

func TestExecute_UnknownFieldsBecomeWarnings(t *testing.T) {
	f := newFixture(t)
	f.seed(t, baseFixtures())

	env, res := f.call(t, identity.Caller{}, catalog.OpGetStores, `{"color":"blue","limit":"1"}`)
	require.False(t, res.IsError)
	require.NotNil(t, env.Count)
	assert.Equal(t, 1, *env.Count)
	assert.Equal(t, []string{`ignored unknown parameter "color"`}, env.Warnings)
}

func TestExecute_ReportUnsupported(t *testing.T) {
	f := newFixture(t)

	env, res := f.call(t, identity.Caller{}, catalog.OpReportUnsupported, `{"reason":"직원 삭제는 지원하지 않습니다"}`)
	assert.False(t, res.IsError)
	assert.True(t, env.Unsupported)
	assert.Contains(t, env.Message, UnsupportedPhrase)
}

func TestLimitOrDefault(t *testing.T) {
	assert.Equal(t, catalog.DefaultLimit, limitOrDefault(0))
	assert.Equal(t, 3, limitOrDefault(3))
	assert.Equal(t, 100, limitOrDefault(5000))
}
