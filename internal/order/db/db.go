package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"printmill/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

func (d *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := d.Bun.NewInsert().Model(o).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (d *DB) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("order_number = ?", number).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (d *DB) GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("stripe_payment_intent_id = ?", intentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("ordered_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderCAS rewrites the mutable order fields only while the stored row
// still matches the state the caller computed from. A false return means a
// concurrent writer got there first.
func (d *DB) UpdateOrderCAS(ctx context.Context, o *models.Order, expectStatus models.OrderStatus, expectPayment models.PaymentStatus) (bool, error) {
	o.UpdatedAt = time.Now()
	res, err := d.Bun.NewUpdate().
		Model(o).
		Column("status", "payment_status", "payment_method",
			"stripe_payment_intent_id", "stripe_session_id",
			"confirmed_at", "shipped_at", "delivered_at", "cancelled_at", "updated_at").
		Where("id = ?", o.ID).
		Where("status = ?", expectStatus).
		Where("payment_status = ?", expectPayment).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) SetPaymentIntent(ctx context.Context, orderID, intentID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("stripe_payment_intent_id = ?", intentID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// ---------------- DESIGNS / TEMPLATES ----------------

func (d *DB) GetDesignByID(ctx context.Context, id string) (*models.Design, error) {
	var design models.Design
	err := d.Bun.NewSelect().
		Model(&design).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &design, nil
}

func (d *DB) GetTemplateByID(ctx context.Context, id string) (*models.Template, error) {
	var tmpl models.Template
	err := d.Bun.NewSelect().
		Model(&tmpl).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}
