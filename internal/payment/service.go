package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"printmill/internal/logger"
	"printmill/internal/models"
	"printmill/internal/order"
	"printmill/internal/payment/storage"
)

// Gateway event types the processor understands. Everything else is recorded
// and acknowledged without touching any order.
const (
	EventTypeIntentProcessing = "payment_intent.processing"
	EventTypeIntentSucceeded  = "payment_intent.succeeded"
	EventTypeIntentFailed     = "payment_intent.payment_failed"
	EventTypeChargeRefunded   = "charge.refunded"
	EventTypeSessionCompleted = "checkout.session.completed"
)

// OrderService is the slice of the order service the processor needs.
type OrderService interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	AttachPaymentIntent(ctx context.Context, orderID, intentID string) error
	HandleOrderEvent(ctx context.Context, orderID string, event order.OrderEvent) (*models.Order, error)
}

// Locker serializes deliveries for one order. The database CAS is still the
// correctness boundary; the lock only keeps concurrent deliveries from
// burning CAS retries against each other.
type Locker interface {
	WithOrderLock(orderID, owner string, fn func() error) error
}

type Processor struct {
	store  storage.Store
	orders OrderService
	locker Locker
	logger *logger.Logger
}

func NewProcessor(store storage.Store, orders OrderService, locker Locker, log *logger.Logger) *Processor {
	return &Processor{store: store, orders: orders, locker: locker, logger: log}
}

// gatewayObject is the slice of data.object we navigate, shared by intents,
// charges and checkout sessions.
type gatewayObject struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Metadata       map[string]string `json:"metadata"`
}

type gatewayPayload struct {
	Data struct {
		Object gatewayObject `json:"object"`
	} `json:"data"`
}

// Ingest processes one gateway delivery. The event id is recorded before any
// order is touched; a redelivery whose result is already stored gets that
// result back verbatim and never reaches the order. The bool reports whether
// this delivery did the processing.
func (p *Processor) Ingest(ctx context.Context, eventID, eventType string, payload json.RawMessage) (*models.ProcessingResult, bool, error) {
	if eventID == "" {
		return nil, false, fmt.Errorf("event id is required")
	}

	stored, inserted, err := p.store.InsertEventIfAbsent(&models.PaymentEvent{
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to record event %s: %w", eventID, err)
	}
	if !inserted && stored.Result != nil {
		p.logger.LogWebhook(eventType, eventID, "redelivery, returning stored result "+stored.Result.Outcome)
		return stored.Result, false, nil
	}
	// Either a first delivery, or a redelivery of an event whose first
	// processing never finished. Processing is idempotent either way.

	result, err := p.process(ctx, eventID, eventType, payload)
	if err != nil {
		// Transient failure (stale CAS, db error): nothing final is recorded
		// so a redelivery can try again.
		return nil, false, err
	}

	if err := p.store.RecordResult(eventID, result.OrderID, result); err != nil {
		// Without a durable result the delivery must not be acknowledged.
		return nil, false, fmt.Errorf("failed to record result for event %s: %w", eventID, err)
	}

	p.logger.LogWebhook(eventType, eventID, "processed with outcome "+result.Outcome)
	return result, true, nil
}

func (p *Processor) process(ctx context.Context, eventID, eventType string, payload json.RawMessage) (*models.ProcessingResult, error) {
	orderEvent, known := mapEventType(eventType, payload)
	if !known {
		return &models.ProcessingResult{
			Outcome: models.OutcomeIgnoredUnknownType,
			Detail:  fmt.Sprintf("unhandled event type %q", eventType),
		}, nil
	}

	obj, err := parseObject(payload)
	if err != nil {
		return &models.ProcessingResult{
			Outcome: models.OutcomeMalformedPayload,
			Detail:  err.Error(),
		}, nil
	}

	o, intentID, err := p.resolveOrder(ctx, eventType, obj)
	if err != nil {
		return &models.ProcessingResult{
			Outcome: models.OutcomeOrderNotFound,
			Detail:  err.Error(),
		}, nil
	}

	if intentID != "" && o.StripePaymentIntentID == "" {
		if err := p.orders.AttachPaymentIntent(ctx, o.ID, intentID); err != nil {
			p.logger.Warn("WEBHOOK", fmt.Sprintf("Failed to attach intent %s to order %s: %v", intentID, o.ID, err))
		}
	}

	var (
		updated  *models.Order
		applyErr error
	)
	apply := func() error {
		updated, applyErr = p.orders.HandleOrderEvent(ctx, o.ID, orderEvent)
		return nil
	}
	if p.locker != nil {
		p.locker.WithOrderLock(o.ID, eventID, apply)
	} else {
		apply()
	}

	if applyErr != nil {
		if errors.Is(applyErr, order.ErrIllegalTransition) {
			outcome := models.OutcomeIgnoredIllegal
			if updated != nil && alreadySettled(orderEvent, updated.PaymentStatus) {
				outcome = models.OutcomeDuplicate
			}
			result := &models.ProcessingResult{
				Outcome: outcome,
				Detail:  applyErr.Error(),
				OrderID: o.ID,
			}
			if updated != nil {
				result.OrderStatus = updated.Status
				result.PaymentStatus = updated.PaymentStatus
			}
			return result, nil
		}
		return nil, fmt.Errorf("could not apply %s to order %s: %w", orderEvent, o.ID, applyErr)
	}

	return &models.ProcessingResult{
		Outcome:       models.OutcomeApplied,
		OrderID:       updated.ID,
		OrderStatus:   updated.Status,
		PaymentStatus: updated.PaymentStatus,
	}, nil
}

// mapEventType translates a gateway event type to an order event. For refunds
// the payload decides between full and partial.
func mapEventType(eventType string, payload json.RawMessage) (order.OrderEvent, bool) {
	switch eventType {
	case EventTypeIntentProcessing:
		return order.EventPaymentProcessing, true
	case EventTypeIntentSucceeded, EventTypeSessionCompleted:
		return order.EventPaymentSucceeded, true
	case EventTypeIntentFailed:
		return order.EventPaymentFailed, true
	case EventTypeChargeRefunded:
		obj, err := parseObject(payload)
		if err == nil && obj.Amount > 0 && obj.AmountRefunded < obj.Amount {
			return order.EventPartialRefund, true
		}
		return order.EventRefund, true
	}
	return "", false
}

func parseObject(payload json.RawMessage) (gatewayObject, error) {
	var parsed gatewayPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return gatewayObject{}, fmt.Errorf("undecodable payload: %v", err)
	}
	if parsed.Data.Object.ID == "" {
		return gatewayObject{}, fmt.Errorf("payload carries no data.object.id")
	}
	return parsed.Data.Object, nil
}

// resolveOrder locates the order an event refers to: metadata.order_id when
// the caller stamped it on the gateway object, otherwise the payment intent
// id. Returns the intent id so it can be attached to the order.
func (p *Processor) resolveOrder(ctx context.Context, eventType string, obj gatewayObject) (*models.Order, string, error) {
	intentID := obj.PaymentIntent
	if eventType == EventTypeIntentProcessing || eventType == EventTypeIntentSucceeded || eventType == EventTypeIntentFailed {
		intentID = obj.ID
	}

	if orderID := obj.Metadata["order_id"]; orderID != "" {
		o, err := p.orders.GetOrder(ctx, orderID)
		if err != nil {
			return nil, "", fmt.Errorf("metadata order %s: %v", orderID, err)
		}
		return o, intentID, nil
	}

	if intentID == "" {
		return nil, "", fmt.Errorf("no order reference in payload")
	}
	o, err := p.orders.GetOrderByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, "", fmt.Errorf("payment intent %s: %v", intentID, err)
	}
	return o, intentID, nil
}

// alreadySettled reports whether the payment axis is already where the event
// was trying to move it, which marks a redundant signal rather than an
// out-of-order one.
func alreadySettled(event order.OrderEvent, status models.PaymentStatus) bool {
	switch event {
	case order.EventPaymentSucceeded:
		return status == models.PaymentPaid
	case order.EventPaymentProcessing:
		return status == models.PaymentProcessing || status == models.PaymentPaid
	case order.EventPaymentFailed:
		return status == models.PaymentFailed
	case order.EventRefund:
		return status == models.PaymentRefunded
	case order.EventPartialRefund:
		return status == models.PaymentPartiallyRefunded
	}
	return false
}

// ListOrderEvents exposes the per-order audit trail.
func (p *Processor) ListOrderEvents(orderID string, limit, offset int) ([]*models.PaymentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return p.store.ListEventsByOrder(orderID, limit, offset)
}
