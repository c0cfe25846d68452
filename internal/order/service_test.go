package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"printmill/internal/logger"
	"printmill/internal/models"
	"printmill/internal/pricing"
)

// MockOrderDB is an in-memory DBLayer with the same compare-and-set semantics
// as the real store.
type MockOrderDB struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	designs   map[string]*models.Design
	templates map[string]*models.Template

	casFailures int // force the next N CAS attempts to lose
}

func NewMockOrderDB() *MockOrderDB {
	return &MockOrderDB{
		orders:    make(map[string]*models.Order),
		designs:   make(map[string]*models.Design),
		templates: make(map[string]*models.Template),
	}
}

func (m *MockOrderDB) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderDB) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderDB) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, errors.New("order not found")
}

func (m *MockOrderDB) GetOrderByPaymentIntent(_ context.Context, intentID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.StripePaymentIntentID == intentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, errors.New("order not found")
}

func (m *MockOrderDB) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *MockOrderDB) UpdateOrderCAS(_ context.Context, o *models.Order, expectStatus models.OrderStatus, expectPayment models.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return false, errors.New("order not found")
	}
	if m.casFailures > 0 {
		m.casFailures--
		return false, nil
	}
	if stored.Status != expectStatus || stored.PaymentStatus != expectPayment {
		return false, nil
	}
	cp := *o
	m.orders[o.ID] = &cp
	return true, nil
}

func (m *MockOrderDB) SetPaymentIntent(_ context.Context, orderID, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	o.StripePaymentIntentID = intentID
	return nil
}

func (m *MockOrderDB) GetDesignByID(_ context.Context, id string) (*models.Design, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.designs[id]
	if !ok {
		return nil, errors.New("design not found")
	}
	cp := *d
	return &cp, nil
}

func (m *MockOrderDB) GetTemplateByID(_ context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tmpl, ok := m.templates[id]
	if !ok {
		return nil, errors.New("template not found")
	}
	cp := *tmpl
	return &cp, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []models.OrderLifecycleEvent
}

func (p *capturingPublisher) PublishOrderEvent(ev models.OrderLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Name:        "Hanako Yamada",
		PostalCode:  "150-0001",
		PrefName:    "Tokyo",
		City:        "Shibuya",
		AddressLine: "1-2-3 Jingumae",
	}
}

func newOrderFixture(t *testing.T) (*OrderService, *MockOrderDB, *capturingPublisher) {
	t.Helper()
	db := NewMockOrderDB()
	db.templates["tpl-1"] = &models.Template{ID: "tpl-1", BaseUnitPrice: 3000, IsActive: true}
	db.designs["dsg-1"] = &models.Design{
		ID: "dsg-1", UserID: "user-1", TemplateID: "tpl-1", Status: models.DesignReady,
	}
	pub := &capturingPublisher{}
	svc := NewOrderService(db, pub, logger.NewLogger(), pricing.DefaultRules())
	return svc, db, pub
}

func TestCreateOrder_FreezesPricing(t *testing.T) {
	svc, _, pub := newOrderFixture(t)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID:        "dsg-1",
		Quantity:        3,
		ShippingAddress: validAddress(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.Subtotal != 9000 || o.ShippingFee != 0 || o.Amount != 9000 {
		t.Fatalf("pricing mismatch: subtotal=%d shipping=%d amount=%d", o.Subtotal, o.ShippingFee, o.Amount)
	}
	if o.Status != models.OrderPending || o.PaymentStatus != models.PaymentPending {
		t.Fatalf("new order must start pending/pending, got %s/%s", o.Status, o.PaymentStatus)
	}
	if o.AmountBreakdown["amount"] != int64(9000) {
		t.Fatalf("amount_breakdown not frozen: %v", o.AmountBreakdown)
	}
	if o.OrderNumber == "" {
		t.Fatal("order number not assigned")
	}
	kinds := pub.kinds()
	if len(kinds) != 1 || kinds[0] != models.OrderEventCreated {
		t.Fatalf("expected order.created event, got %v", kinds)
	}
}

func TestCreateOrder_ShippingFeeBelowThreshold(t *testing.T) {
	svc, _, _ := newOrderFixture(t)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID:        "dsg-1",
		Quantity:        2,
		ShippingAddress: validAddress(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Subtotal != 6000 || o.ShippingFee != 690 || o.Amount != 6690 {
		t.Fatalf("pricing mismatch: subtotal=%d shipping=%d amount=%d", o.Subtotal, o.ShippingFee, o.Amount)
	}
}

func TestCreateOrder_RejectsUnreadyDesign(t *testing.T) {
	svc, db, _ := newOrderFixture(t)
	db.designs["dsg-1"].Status = models.DesignRendering

	_, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID:        "dsg-1",
		Quantity:        1,
		ShippingAddress: validAddress(),
	})
	if !errors.Is(err, ErrDesignNotReady) {
		t.Fatalf("expected ErrDesignNotReady, got %v", err)
	}
}

func TestCreateOrder_RejectsForeignDesign(t *testing.T) {
	svc, _, _ := newOrderFixture(t)

	_, err := svc.CreateOrder(context.Background(), "user-2", models.OrderRequest{
		DesignID:        "dsg-1",
		Quantity:        1,
		ShippingAddress: validAddress(),
	})
	if !errors.Is(err, ErrNotDesignOwner) {
		t.Fatalf("expected ErrNotDesignOwner, got %v", err)
	}
}

func TestCreateOrder_ValidatesRequest(t *testing.T) {
	svc, _, _ := newOrderFixture(t)

	_, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID:        "dsg-1",
		Quantity:        0,
		ShippingAddress: validAddress(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("zero quantity: expected ErrValidation, got %v", err)
	}

	addr := validAddress()
	addr.PostalCode = "12345"
	_, err = svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID:        "dsg-1",
		Quantity:        1,
		ShippingAddress: addr,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("bad postal code: expected ErrValidation, got %v", err)
	}
}

func TestHandleOrderEvent_ConfirmPublishes(t *testing.T) {
	svc, _, pub := newOrderFixture(t)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID: "dsg-1", Quantity: 1, ShippingAddress: validAddress(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.HandleOrderEvent(context.Background(), o.ID, EventPaymentSucceeded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.OrderConfirmed || updated.PaymentStatus != models.PaymentPaid {
		t.Fatalf("expected confirmed/paid, got %s/%s", updated.Status, updated.PaymentStatus)
	}

	kinds := pub.kinds()
	if len(kinds) != 2 || kinds[1] != models.OrderEventConfirmed {
		t.Fatalf("expected order.confirmed after order.created, got %v", kinds)
	}
}

func TestHandleOrderEvent_IllegalLeavesOrderUntouched(t *testing.T) {
	svc, db, _ := newOrderFixture(t)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID: "dsg-1", Quantity: 1, ShippingAddress: validAddress(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	current, err := svc.HandleOrderEvent(context.Background(), o.ID, EventDeliver)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if current.Status != models.OrderPending {
		t.Fatalf("order must be returned in its stored state, got %s", current.Status)
	}
	stored, _ := db.GetOrderByID(context.Background(), o.ID)
	if stored.Status != models.OrderPending {
		t.Fatalf("stored order mutated to %s", stored.Status)
	}
}

func TestHandleOrderEvent_RetriesAfterLosingCAS(t *testing.T) {
	svc, db, _ := newOrderFixture(t)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID: "dsg-1", Quantity: 1, ShippingAddress: validAddress(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	db.casFailures = 2
	updated, err := svc.HandleOrderEvent(context.Background(), o.ID, EventConfirm)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if updated.Status != models.OrderConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
}

func TestHandleOrderEvent_GivesUpWhenAlwaysStale(t *testing.T) {
	svc, db, _ := newOrderFixture(t)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		DesignID: "dsg-1", Quantity: 1, ShippingAddress: validAddress(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	db.casFailures = 100
	_, err = svc.HandleOrderEvent(context.Background(), o.ID, EventConfirm)
	if !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("expected ErrStaleOrder, got %v", err)
	}
}
