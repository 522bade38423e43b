package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

func salesFixtures() *storage.Fixtures {
	fx := baseFixtures()
	order := func(id, store, day, status, method string, total, discount models.Money) models.Order {
		ts := at(day, "12:00")
		return models.Order{ID: id, StoreID: store, OrderNumber: "N-" + id, BusinessDate: day, OrderedAt: ts,
			Status: status, PaymentMethod: method, TotalAmount: total, DiscountAmount: discount, CreatedAt: ts}
	}
	fx.Orders = []models.Order{
		order("o1", "s1", "2025-03-12", "completed", "card", 15000, 1000),
		order("o2", "s1", "2025-03-12", "completed", "cash", 8000, 0),
		order("o3", "s1", "2025-03-12", "cancelled", "card", 9000, 0),
		order("o4", "s1", "2025-03-11", "completed", "card", 12000, 0),
		order("o5", "s1", "2025-03-12", "refunded", "card", 5000, 0),
		order("o6", "s2", "2025-03-12", "completed", "card", 40000, 0),
	}
	return fx
}

func TestSummarizeOrders(t *testing.T) {
	s := summarizeOrders(salesFixtures().Orders[:5])

	assert.Equal(t, models.Money(35000), s.TotalSales)
	assert.Equal(t, models.Money(1000), s.TotalDiscount)
	assert.Equal(t, models.Money(34000), s.NetSales)
	assert.Equal(t, 3, s.OrderCount)
	assert.Equal(t, 1, s.CancelledCount)
	assert.Equal(t, 1, s.RefundedCount)
	assert.Equal(t, models.Money(11333), s.AverageOrder)
	assert.Equal(t, []PaymentTotal{
		{PaymentMethod: "card", OrderCount: 2, NetSales: 26000},
		{PaymentMethod: "cash", OrderCount: 1, NetSales: 8000},
	}, s.ByPayment)
	require.Len(t, s.ByDay, 2)
	assert.Equal(t, "2025-03-11", s.ByDay[0].BusinessDate)
}

func TestExecute_SalesSummaryDefaultsToCallerStoreAndToday(t *testing.T) {
	f := newFixture(t)
	f.seed(t, salesFixtures())
	caller := identity.Caller{UserID: "u1", StoreID: "s1", StoreName: "강남점"}

	env, res := f.call(t, caller, catalog.OpGetSalesSummary, `{}`)
	require.False(t, res.IsError)
	assert.Equal(t, "sales_summary", env.DataType)
	require.NotNil(t, env.Store)
	assert.Equal(t, "s1", env.Store.ID)
	assert.True(t, env.Store.Defaulted)
	require.NotNil(t, env.Period)
	assert.Equal(t, "2025-03-12", env.Period.Start)

	var summary SalesSummary
	decodeData(t, env, &summary)
	assert.Equal(t, models.Money(22000), summary.NetSales)
	assert.Equal(t, 2, summary.OrderCount)
	assert.Contains(t, env.Message, "22,000원")
}

func TestExecute_SalesSummaryStoreResolution(t *testing.T) {
	f := newFixture(t)
	f.seed(t, salesFixtures())
	caller := identity.Caller{StoreID: "s1", StoreName: "강남점"}

	tests := []struct {
		name      string
		input     string
		wantStore string
		defaulted bool
		wantNet   models.Money
	}{
		{"by name", `{"store_name":"홍대"}`, "s2", false, 40000},
		{"by id", `{"store_id":"s2"}`, "s2", false, 40000},
		{"unknown name falls back", `{"store_name":"부산점"}`, "s1", true, 22000},
		{"unknown id tries name", `{"store_id":"bogus","store_name":"홍대점"}`, "s2", false, 40000},
		{"unknown id and name fall back", `{"store_id":"bogus","store_name":"부산점"}`, "s1", true, 22000},
		{"week range", `{"date_range":"this_week"}`, "s1", true, 34000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := f.call(t, caller, catalog.OpGetSalesSummary, tt.input)
			require.NotNil(t, env.Store)
			assert.Equal(t, tt.wantStore, env.Store.ID)
			assert.Equal(t, tt.defaulted, env.Store.Defaulted)
			var summary SalesSummary
			decodeData(t, env, &summary)
			assert.Equal(t, tt.wantNet, summary.NetSales)
		})
	}
}

func TestExecute_SalesSummaryWithoutDefaultStoreSpansAllStores(t *testing.T) {
	f := newFixture(t)
	f.seed(t, salesFixtures())

	env, _ := f.call(t, identity.Caller{}, catalog.OpGetSalesSummary, `{}`)
	require.NotNil(t, env.Store)
	assert.True(t, env.Store.All())
	var summary SalesSummary
	decodeData(t, env, &summary)
	assert.Equal(t, models.Money(62000), summary.NetSales)
}

func TestExecute_OrdersFilters(t *testing.T) {
	f := newFixture(t)
	f.seed(t, salesFixtures())
	caller := identity.Caller{StoreID: "s1", StoreName: "강남점"}

	env, _ := f.call(t, caller, catalog.OpGetOrders, `{"status":"completed","payment_method":"CARD"}`)
	var rows []OrderRow
	decodeData(t, env, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "o1", rows[0].ID)
	assert.Equal(t, models.Money(14000), rows[0].NetAmount)
	assert.Equal(t, "강남점", rows[0].StoreName)
}

func TestFormatWon(t *testing.T) {
	assert.Equal(t, "0", formatWon(0))
	assert.Equal(t, "999", formatWon(999))
	assert.Equal(t, "1,000", formatWon(1000))
	assert.Equal(t, "1,234,567", formatWon(1234567))
	assert.Equal(t, "-12,000", formatWon(-12000))
}

func TestMinutesToHours(t *testing.T) {
	assert.Equal(t, 7.5, minutesToHours(450))
	assert.Equal(t, 0.33, minutesToHours(20))
}
