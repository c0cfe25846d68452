package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"printmill/internal/logger"
	"printmill/internal/models"
	"printmill/internal/pricing"
	"printmill/internal/utils"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDesignNotReady = errors.New("design is not ready for ordering")
	ErrNotDesignOwner = errors.New("design belongs to another user")
	ErrValidation     = errors.New("invalid order request")
	ErrStaleOrder     = errors.New("order was modified concurrently")
)

// casRetries bounds how often a writer re-reads after losing the per-order
// compare-and-set before giving up with ErrStaleOrder.
const casRetries = 3

type DBLayer interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	// UpdateOrderCAS persists the updated order only if the stored row still
	// carries the expected (status, payment_status) pair.
	UpdateOrderCAS(ctx context.Context, o *models.Order, expectStatus models.OrderStatus, expectPayment models.PaymentStatus) (bool, error)
	SetPaymentIntent(ctx context.Context, orderID, intentID string) error

	GetDesignByID(ctx context.Context, id string) (*models.Design, error)
	GetTemplateByID(ctx context.Context, id string) (*models.Template, error)
}

type KafkaPublisher interface {
	PublishOrderEvent(ev models.OrderLifecycleEvent) error
}

type OrderService struct {
	DB     DBLayer
	Kafka  KafkaPublisher
	logger *logger.Logger
	rules  pricing.Rules
}

func NewOrderService(db DBLayer, kafka KafkaPublisher, log *logger.Logger, rules pricing.Rules) *OrderService {
	return &OrderService{DB: db, Kafka: kafka, logger: log, rules: rules}
}

// CreateOrder prices and persists a purchase of one ready design. Pricing is
// computed exactly once here and frozen onto the row; later catalog changes
// never touch existing orders.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.OrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	design, err := s.DB.GetDesignByID(ctx, req.DesignID)
	if err != nil {
		return nil, fmt.Errorf("design %s not found: %w", req.DesignID, err)
	}
	if design.UserID != userID {
		return nil, fmt.Errorf("%w: design %s", ErrNotDesignOwner, req.DesignID)
	}
	if design.Status != models.DesignReady {
		return nil, fmt.Errorf("%w: design %s is %s", ErrDesignNotReady, req.DesignID, design.Status)
	}

	tmpl, err := s.DB.GetTemplateByID(ctx, design.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("template %s not found: %w", design.TemplateID, err)
	}

	breakdown, err := pricing.Compute(tmpl.BaseUnitPrice, req.Quantity, s.rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	shippingMethod := req.ShippingMethod
	if shippingMethod == "" {
		shippingMethod = "standard"
	}

	now := time.Now()
	order := &models.Order{
		ID:                    uuid.NewString(),
		UserID:                userID,
		DesignID:              design.ID,
		OrderNumber:           utils.GenerateOrderNumber(),
		Quantity:              req.Quantity,
		BaseUnitPrice:         breakdown.BaseUnitPrice,
		Subtotal:              breakdown.Subtotal,
		DiscountTotal:         breakdown.DiscountTotal,
		SubtotalAfterDiscount: breakdown.SubtotalAfterDiscount,
		ShippingFee:           breakdown.ShippingFee,
		Amount:                breakdown.Amount,
		AmountBreakdown:       breakdown.ToDocument(),
		ShippingAddress:       req.ShippingAddress,
		ShippingMethod:        shippingMethod,
		Status:                models.OrderPending,
		PaymentStatus:         models.PaymentPending,
		OrderedAt:             now,
		CreatedAt:             now,
	}

	// Invariants are enforced here, not left to the storage layer.
	if err := breakdown.Validate(s.rules); err != nil {
		return nil, err
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("order %s: %d x %d = %d (shipping %d)",
		order.OrderNumber, order.Quantity, order.BaseUnitPrice, order.Amount, order.ShippingFee))
	s.publish(models.OrderEventCreated, order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.DB.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

func (s *OrderService) GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	o, err := s.DB.GetOrderByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: payment intent %s", ErrOrderNotFound, intentID)
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.ListOrdersByUser(ctx, userID)
}

func (s *OrderService) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	return s.DB.SetPaymentIntent(ctx, orderID, intentID)
}

// HandleOrderEvent applies one state-machine event to an order. Concurrent
// writers serialize through a compare-and-set on (status, payment_status):
// losing writers re-read and re-evaluate, so an event is never applied onto a
// state it was not computed from.
func (s *OrderService) HandleOrderEvent(ctx context.Context, orderID string, event OrderEvent) (*models.Order, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		current, err := s.DB.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}

		next, err := ApplyOrderEvent(*current, event, time.Now())
		if err != nil {
			// Out-of-order or duplicated signal: order stays untouched.
			return current, err
		}

		won, err := s.DB.UpdateOrderCAS(ctx, &next, current.Status, current.PaymentStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to persist order %s: %w", orderID, err)
		}
		if won {
			s.logger.LogOrder(string(event), orderID, fmt.Sprintf("%s/%s -> %s/%s",
				current.Status, current.PaymentStatus, next.Status, next.PaymentStatus))
			s.publishTransition(event, &next)
			return &next, nil
		}
		// Lost the CAS; re-read and re-evaluate against the fresh state.
	}
	return nil, fmt.Errorf("%w: %s", ErrStaleOrder, orderID)
}

func (s *OrderService) publishTransition(event OrderEvent, o *models.Order) {
	switch event {
	case EventConfirm, EventPaymentSucceeded:
		s.publish(models.OrderEventConfirmed, o)
	case EventCancel:
		s.publish(models.OrderEventCancelled, o)
	case EventRefund:
		s.publish(models.OrderEventRefunded, o)
	}
}

func (s *OrderService) publish(kind string, o *models.Order) {
	if s.Kafka == nil {
		return
	}
	ev := models.OrderLifecycleEvent{
		Kind:          kind,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Amount:        o.Amount,
		Timestamp:     time.Now(),
	}
	if err := s.Kafka.PublishOrderEvent(ev); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for order %s: %v", kind, o.ID, err))
	}
}
