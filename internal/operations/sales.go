package operations

import (
	"context"
	"fmt"
	"math"

	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

const (
	orderCompleted = "completed"
	orderCancelled = "cancelled"
	orderRefunded  = "refunded"
)

// salesScanLimit bounds the orders aggregated by one summary.
const salesScanLimit = 20000

// SalesSummary aggregates completed orders. All amounts are integer won.
type SalesSummary struct {
	TotalSales     models.Money   `json:"total_sales"`
	TotalDiscount  models.Money   `json:"total_discount"`
	NetSales       models.Money   `json:"net_sales"`
	OrderCount     int            `json:"order_count"`
	CancelledCount int            `json:"cancelled_count"`
	RefundedCount  int            `json:"refunded_count"`
	AverageOrder   models.Money   `json:"average_order"`
	ByPayment      []PaymentTotal `json:"by_payment_method"`
	ByDay          []DailySales   `json:"by_day"`
	Truncated      bool           `json:"truncated,omitempty"`
}

// PaymentTotal is the net sales of one payment method.
type PaymentTotal struct {
	PaymentMethod string       `json:"payment_method"`
	OrderCount    int          `json:"order_count"`
	NetSales      models.Money `json:"net_sales"`
}

// DailySales is the net sales of one business date.
type DailySales struct {
	BusinessDate string       `json:"business_date"`
	OrderCount   int          `json:"order_count"`
	NetSales     models.Money `json:"net_sales"`
}

// summarizeOrders folds orders into a SalesSummary. Only completed orders
// contribute to amounts; the average is floored.
func summarizeOrders(orders []models.Order) SalesSummary {
	var s SalesSummary
	payments := map[string]*PaymentTotal{}
	days := map[string]*DailySales{}

	for _, o := range orders {
		switch o.Status {
		case orderCancelled:
			s.CancelledCount++
			continue
		case orderRefunded:
			s.RefundedCount++
			continue
		case orderCompleted:
		default:
			continue
		}
		net := o.TotalAmount - o.DiscountAmount
		s.OrderCount++
		s.TotalSales += o.TotalAmount
		s.TotalDiscount += o.DiscountAmount
		s.NetSales += net

		p, ok := payments[o.PaymentMethod]
		if !ok {
			p = &PaymentTotal{PaymentMethod: o.PaymentMethod}
			payments[o.PaymentMethod] = p
		}
		p.OrderCount++
		p.NetSales += net

		d, ok := days[o.BusinessDate]
		if !ok {
			d = &DailySales{BusinessDate: o.BusinessDate}
			days[o.BusinessDate] = d
		}
		d.OrderCount++
		d.NetSales += net
	}

	if s.OrderCount > 0 {
		s.AverageOrder = s.NetSales / models.Money(s.OrderCount)
	}
	s.ByPayment = make([]PaymentTotal, 0, len(payments))
	for _, k := range sortedKeys(payments) {
		s.ByPayment = append(s.ByPayment, *payments[k])
	}
	s.ByDay = make([]DailySales, 0, len(days))
	for _, k := range sortedKeys(days) {
		s.ByDay = append(s.ByDay, *days[k])
	}
	return s
}

type salesSummaryRequest struct {
	StoreID   string `json:"store_id"`
	StoreName string `json:"store_name"`
	DateRange string `json:"date_range"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (r *salesSummaryRequest) validate() error { return nil }

func (r *salesSummaryRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	scope, err := env.resolveStore(ctx, r.StoreID, r.StoreName)
	if err != nil {
		return nil, err
	}
	period := env.dates.ResolveInput(r.DateRange, r.StartDate, r.EndDate, datetime.PeriodToday)

	q := storage.Where(scope.filter("store_id")...).
		And(storage.Between("business_date", period.Start, period.End)...).
		WithLimit(salesScanLimit)
	orders, err := env.stores.Orders.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	summary := summarizeOrders(orders)
	summary.Truncated = len(orders) == salesScanLimit
	n := summary.OrderCount
	msg := fmt.Sprintf("%s %s 매출은 %s원입니다 (완료 주문 %d건)", scope.Name, period, formatWon(summary.NetSales), n)
	return &Envelope{
		Message:  withScope(msg, scope),
		DataType: "sales_summary",
		Data:     summary,
		Count:    &n,
		Period:   &period,
		Store:    &scope,
	}, nil
}

// OrderRow is one order with its store name.
type OrderRow struct {
	models.Order
	StoreName string       `json:"store_name,omitempty"`
	NetAmount models.Money `json:"net_amount"`
}

type ordersRequest struct {
	StoreID       string `json:"store_id"`
	StoreName     string `json:"store_name"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	DateRange     string `json:"date_range"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Limit         int    `json:"limit"`
}

func (r *ordersRequest) validate() error { return nil }

func (r *ordersRequest) run(ctx context.Context, env *env) (*Envelope, error) {
	scope, err := env.resolveStore(ctx, r.StoreID, r.StoreName)
	if err != nil {
		return nil, err
	}
	period := env.dates.ResolveInput(r.DateRange, r.StartDate, r.EndDate, datetime.PeriodToday)

	q := storage.Where(scope.filter("store_id")...).
		And(storage.Between("business_date", period.Start, period.End)...).
		WithLimit(limitOrDefault(r.Limit))
	if s := filterValue(r.Status); s != "" {
		q = q.And(storage.Eq("status", s))
	}
	if p := filterValue(r.PaymentMethod); p != "" {
		q = q.And(storage.Eq("payment_method", p))
	}
	orders, err := env.stores.Orders.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	storeIDs := make([]string, len(orders))
	for i, o := range orders {
		storeIDs[i] = o.StoreID
	}
	stores, err := env.storesByID(ctx, storeIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = OrderRow{Order: o, StoreName: stores[o.StoreID].Name, NetAmount: o.TotalAmount - o.DiscountAmount}
	}
	out := list("orders", withScope(fmt.Sprintf("%s %s 주문 %d건을 조회했습니다", scope.Name, period, len(rows)), scope), rows)
	out.Period = &period
	out.Store = &scope
	return out, nil
}

// formatWon renders an amount with thousands separators.
func formatWon(amount models.Money) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var out []byte
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return sign + string(out)
}

// minutesToHours renders minutes as hours rounded to two places.
func minutesToHours(minutes int) float64 {
	return math.Round(float64(minutes)/60*100) / 100
}
