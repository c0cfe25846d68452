package order

import (
	"errors"
	"fmt"
	"time"

	"printmill/internal/models"
)

// ErrIllegalTransition is a typed result, not control flow: callers that feed
// external signals (webhooks, worker results) record it and move on.
var ErrIllegalTransition = errors.New("illegal order transition")

// OrderEvent drives the order and payment state machines. The transition
// tables below are the complete definition; anything absent is illegal.
type OrderEvent string

const (
	EventConfirm           OrderEvent = "confirm"
	EventStartProcessing   OrderEvent = "start_processing"
	EventShip              OrderEvent = "ship"
	EventDeliver           OrderEvent = "deliver"
	EventCancel            OrderEvent = "cancel"
	EventPaymentProcessing OrderEvent = "payment_processing"
	EventPaymentSucceeded  OrderEvent = "payment_succeeded"
	EventPaymentFailed     OrderEvent = "payment_failed"
	EventRefund            OrderEvent = "refund"
	EventPartialRefund     OrderEvent = "partial_refund"
)

func ParseOrderEvent(s string) (OrderEvent, error) {
	switch OrderEvent(s) {
	case EventConfirm, EventStartProcessing, EventShip, EventDeliver, EventCancel,
		EventPaymentProcessing, EventPaymentSucceeded, EventPaymentFailed,
		EventRefund, EventPartialRefund:
		return OrderEvent(s), nil
	}
	return "", fmt.Errorf("unknown order event %q", s)
}

type statusKey struct {
	status models.OrderStatus
	event  OrderEvent
}

type paymentKey struct {
	status models.PaymentStatus
	event  OrderEvent
}

// statusTransitions: fulfillment axis.
var statusTransitions = map[statusKey]models.OrderStatus{
	{models.OrderPending, EventConfirm}:           models.OrderConfirmed,
	{models.OrderPending, EventPaymentSucceeded}:  models.OrderConfirmed,
	{models.OrderConfirmed, EventStartProcessing}: models.OrderProcessing,
	{models.OrderProcessing, EventShip}:           models.OrderShipped,
	{models.OrderShipped, EventDeliver}:           models.OrderDelivered,

	{models.OrderPending, EventCancel}:    models.OrderCancelled,
	{models.OrderConfirmed, EventCancel}:  models.OrderCancelled,
	{models.OrderProcessing, EventCancel}: models.OrderCancelled,

	// Refunds reach any post-payment state.
	{models.OrderConfirmed, EventRefund}:  models.OrderRefunded,
	{models.OrderProcessing, EventRefund}: models.OrderRefunded,
	{models.OrderShipped, EventRefund}:    models.OrderRefunded,
	{models.OrderDelivered, EventRefund}:  models.OrderRefunded,
}

// paymentTransitions: payment axis.
var paymentTransitions = map[paymentKey]models.PaymentStatus{
	{models.PaymentPending, EventPaymentProcessing}:   models.PaymentProcessing,
	{models.PaymentPending, EventPaymentSucceeded}:    models.PaymentPaid,
	{models.PaymentProcessing, EventPaymentSucceeded}: models.PaymentPaid,
	{models.PaymentPending, EventPaymentFailed}:       models.PaymentFailed,
	{models.PaymentProcessing, EventPaymentFailed}:    models.PaymentFailed,

	{models.PaymentPaid, EventRefund}:                     models.PaymentRefunded,
	{models.PaymentPartiallyRefunded, EventRefund}:        models.PaymentRefunded,
	{models.PaymentPaid, EventPartialRefund}:              models.PaymentPartiallyRefunded,
	{models.PaymentPartiallyRefunded, EventPartialRefund}: models.PaymentPartiallyRefunded,
}

// paymentAxisEvents move the payment status; everything else only touches the
// fulfillment axis.
var paymentAxisEvents = map[OrderEvent]bool{
	EventPaymentProcessing: true,
	EventPaymentSucceeded:  true,
	EventPaymentFailed:     true,
	EventRefund:            true,
	EventPartialRefund:     true,
}

var fulfillmentAxisEvents = map[OrderEvent]bool{
	EventConfirm:          true,
	EventStartProcessing:  true,
	EventShip:             true,
	EventDeliver:          true,
	EventCancel:           true,
	EventPaymentSucceeded: true,
	EventRefund:           true,
}

// ApplyOrderEvent returns a copy of the order advanced by the event, stamping
// the lifecycle timestamps the write path is responsible for. The function is
// total over the transition tables: any undefined transition returns the
// order unchanged together with ErrIllegalTransition.
func ApplyOrderEvent(o models.Order, event OrderEvent, now time.Time) (models.Order, error) {
	nextStatus, statusOK := statusTransitions[statusKey{o.Status, event}]
	nextPayment, paymentOK := paymentTransitions[paymentKey{o.PaymentStatus, event}]

	touchesStatus := fulfillmentAxisEvents[event]
	touchesPayment := paymentAxisEvents[event]

	// An event must advance every axis it touches... with one exception:
	// payment success on an already-confirmed order still counts, and a full
	// refund of an order whose fulfillment already reached a terminal state
	// still flips the payment axis.
	if touchesPayment && !paymentOK {
		return o, fmt.Errorf("%w: %s on payment_status %s", ErrIllegalTransition, event, o.PaymentStatus)
	}
	if touchesStatus && !touchesPayment && !statusOK {
		return o, fmt.Errorf("%w: %s on status %s", ErrIllegalTransition, event, o.Status)
	}

	next := o
	if statusOK {
		next.Status = nextStatus
		switch nextStatus {
		case models.OrderConfirmed:
			next.ConfirmedAt = now
		case models.OrderShipped:
			next.ShippedAt = now
		case models.OrderDelivered:
			next.DeliveredAt = now
		case models.OrderCancelled:
			next.CancelledAt = now
		}
	}
	if paymentOK {
		next.PaymentStatus = nextPayment
	}
	next.UpdatedAt = now
	return next, nil
}
