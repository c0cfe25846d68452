package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// StatusCountData represents order counts grouped by fulfillment status
type StatusCountData struct {
	Status string `bun:"status"`
	Count  int64  `bun:"status_count"`
}

// GetStatusCountsByUserID counts a user's orders per fulfillment status
func (db *DB) GetStatusCountsByUserID(ctx context.Context, userID string) ([]StatusCountData, error) {
	var counts []StatusCountData
	err := db.bun.NewSelect().
		ColumnExpr("orders.status").
		ColumnExpr("COUNT(*) AS status_count").
		TableExpr("orders").
		Where("orders.user_id = ?", userID).
		GroupExpr("orders.status").
		OrderExpr("orders.status").
		Scan(ctx, &counts)

	return counts, err
}

// DailySalesData represents raw daily sales metrics from the database.
// Only settled orders count toward revenue.
type DailySalesData struct {
	SalesDate     time.Time `bun:"sales_date"`
	DailyRevenue  int64     `bun:"daily_revenue"`
	DailyQuantity int64     `bun:"daily_quantity"`
}

// GetDailySalesByUserID retrieves daily sales metrics for a user's paid orders
func (db *DB) GetDailySalesByUserID(ctx context.Context, userID string) ([]DailySalesData, error) {
	var dailySales []DailySalesData
	err := db.bun.NewRaw(`
		SELECT
			DATE(o.created_at) AS sales_date,
			SUM(o.amount) AS daily_revenue,
			SUM(o.quantity) AS daily_quantity
		FROM
			orders o
		WHERE
			o.user_id = ? AND o.payment_status IN ('paid', 'partially_refunded')
		GROUP BY
			DATE(o.created_at)
		ORDER BY
			DATE(o.created_at)
	`, userID).Scan(ctx, &dailySales)

	return dailySales, err
}

// TemplateSalesData represents units and revenue grouped by catalog template
type TemplateSalesData struct {
	TemplateID string `bun:"template_id"`
	Units      int64  `bun:"units"`
	Revenue    int64  `bun:"revenue"`
}

// GetTemplateSalesByUserID retrieves per-template sales for a user's paid orders
func (db *DB) GetTemplateSalesByUserID(ctx context.Context, userID string) ([]TemplateSalesData, error) {
	var templateSales []TemplateSalesData
	err := db.bun.NewRaw(`
		SELECT
			d.template_id AS template_id,
			SUM(o.quantity) AS units,
			SUM(o.amount) AS revenue
		FROM
			orders o
		JOIN
			designs d ON d.id = o.design_id
		WHERE
			o.user_id = ? AND o.payment_status IN ('paid', 'partially_refunded')
		GROUP BY
			d.template_id
		ORDER BY
			revenue DESC
	`, userID).Scan(ctx, &templateSales)

	return templateSales, err
}

// GetRefundTotalsByUserID sums refunded order amounts for a user
func (db *DB) GetRefundTotalsByUserID(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := db.bun.NewRaw(`
		SELECT COALESCE(SUM(o.amount), 0)
		FROM orders o
		WHERE o.user_id = ? AND o.payment_status = 'refunded'
	`, userID).Scan(ctx, &total)

	return total, err
}
