package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
		OrderDelivered, OrderCancelled, OrderRefunded:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentProcessing, PaymentPaid, PaymentFailed,
		PaymentRefunded, PaymentPartiallyRefunded:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// Order is a purchase of one design. Pricing fields are frozen at creation
// and never recomputed, so catalog price changes cannot rewrite history.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          string `bun:"id,pk" json:"id"`
	UserID      string `bun:"user_id,notnull" json:"user_id"`
	DesignID    string `bun:"design_id,notnull" json:"design_id"`
	OrderNumber string `bun:"order_number,unique,notnull" json:"order_number"`
	Quantity    int64  `bun:"quantity,notnull" json:"quantity"`

	BaseUnitPrice         int64                  `bun:"base_unit_price,notnull" json:"base_unit_price"`
	Subtotal              int64                  `bun:"subtotal,notnull" json:"subtotal"`
	DiscountTotal         int64                  `bun:"discount_total,notnull,default:0" json:"discount_total"`
	SubtotalAfterDiscount int64                  `bun:"subtotal_after_discount,notnull" json:"subtotal_after_discount"`
	ShippingFee           int64                  `bun:"shipping_fee,notnull,default:0" json:"shipping_fee"`
	Amount                int64                  `bun:"amount,notnull" json:"amount"`
	AmountBreakdown       map[string]interface{} `bun:"amount_breakdown,type:jsonb" json:"amount_breakdown"`

	ShippingAddress ShippingAddress `bun:"shipping_address,type:jsonb" json:"shipping_address"`
	ShippingMethod  string          `bun:"shipping_method,notnull,default:'standard'" json:"shipping_method"`

	Status        OrderStatus   `bun:"status,notnull,default:'pending'" json:"status"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull,default:'pending'" json:"payment_status"`
	PaymentMethod string        `bun:"payment_method,nullzero" json:"payment_method,omitempty"`

	StripePaymentIntentID string `bun:"stripe_payment_intent_id,nullzero" json:"stripe_payment_intent_id,omitempty"`
	StripeSessionID       string `bun:"stripe_session_id,nullzero" json:"stripe_session_id,omitempty"`

	OrderedAt   time.Time `bun:"ordered_at,notnull,default:current_timestamp" json:"ordered_at"`
	ConfirmedAt time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
	ShippedAt   time.Time `bun:"shipped_at,nullzero" json:"shipped_at,omitempty"`
	DeliveredAt time.Time `bun:"delivered_at,nullzero" json:"delivered_at,omitempty"`
	CancelledAt time.Time `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// OrderRequest is the create-order API payload.
type OrderRequest struct {
	DesignID        string          `json:"design_id"`
	Quantity        int64           `json:"quantity"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	ShippingMethod  string          `json:"shipping_method,omitempty"`
}
