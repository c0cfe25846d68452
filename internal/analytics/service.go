package analytics

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Service provides order analytics operations
type Service struct {
	db *DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db)}
}

// DailySales is one day of settled sales
type DailySales struct {
	Date     string `json:"date"`
	Revenue  int64  `json:"revenue"`
	Quantity int64  `json:"quantity"`
}

// TemplateSales is the settled sales for one catalog template
type TemplateSales struct {
	TemplateID string `json:"template_id"`
	Units      int64  `json:"units"`
	Revenue    int64  `json:"revenue"`
}

// OrderAnalytics is the full analytics payload for one user's orders
type OrderAnalytics struct {
	TotalOrders    int64            `json:"total_orders"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	TotalRevenue   int64            `json:"total_revenue"`
	TotalUnits     int64            `json:"total_units"`
	RefundedTotal  int64            `json:"refunded_total"`
	DailySales     []DailySales     `json:"daily_sales"`
	TemplateSales  []TemplateSales  `json:"template_sales"`
}

// GetOrderAnalytics aggregates order metrics for a user. Revenue figures
// include only settled orders; pending and failed payments never count.
func (s *Service) GetOrderAnalytics(ctx context.Context, userID string) (*OrderAnalytics, error) {
	statusCounts, err := s.db.GetStatusCountsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}

	dailySales, err := s.db.GetDailySalesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily sales: %w", err)
	}

	templateSales, err := s.db.GetTemplateSalesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template sales: %w", err)
	}

	refundedTotal, err := s.db.GetRefundTotalsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund totals: %w", err)
	}

	analytics := &OrderAnalytics{
		OrdersByStatus: make(map[string]int64),
		RefundedTotal:  refundedTotal,
		DailySales:     make([]DailySales, 0, len(dailySales)),
		TemplateSales:  make([]TemplateSales, 0, len(templateSales)),
	}

	for _, sc := range statusCounts {
		analytics.OrdersByStatus[sc.Status] = sc.Count
		analytics.TotalOrders += sc.Count
	}

	for _, ds := range dailySales {
		analytics.TotalRevenue += ds.DailyRevenue
		analytics.TotalUnits += ds.DailyQuantity
		analytics.DailySales = append(analytics.DailySales, DailySales{
			Date:     ds.SalesDate.Format("2006-01-02"),
			Revenue:  ds.DailyRevenue,
			Quantity: ds.DailyQuantity,
		})
	}

	for _, ts := range templateSales {
		analytics.TemplateSales = append(analytics.TemplateSales, TemplateSales{
			TemplateID: ts.TemplateID,
			Units:      ts.Units,
			Revenue:    ts.Revenue,
		})
	}

	return analytics, nil
}
