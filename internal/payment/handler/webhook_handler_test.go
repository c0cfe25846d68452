package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"printmill/internal/logger"
	"printmill/internal/models"
	"printmill/internal/order"
	"printmill/internal/payment"
)

type memEventStore struct {
	mu     sync.Mutex
	events map[string]*models.PaymentEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: map[string]*models.PaymentEvent{}}
}

func (s *memEventStore) InsertEventIfAbsent(event *models.PaymentEvent) (*models.PaymentEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[event.EventID]; ok {
		return existing, false, nil
	}
	stored := *event
	stored.CreatedAt = time.Now()
	s.events[event.EventID] = &stored
	return &stored, true, nil
}

func (s *memEventStore) RecordResult(eventID string, orderID string, result *models.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok || ev.Result != nil {
		return nil
	}
	ev.Result = result
	ev.OrderID = orderID
	ev.ProcessedAt = time.Now()
	return nil
}

func (s *memEventStore) GetEvent(eventID string) (*models.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID], nil
}

func (s *memEventStore) ListEventsByOrder(orderID string, limit, offset int) ([]*models.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PaymentEvent
	for _, ev := range s.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memEventStore) Close() error       { return nil }
func (s *memEventStore) HealthCheck() error { return nil }

type stubOrders struct {
	order models.Order
}

func (s *stubOrders) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if id != s.order.ID {
		return nil, order.ErrOrderNotFound
	}
	o := s.order
	return &o, nil
}

func (s *stubOrders) GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	if intentID != s.order.StripePaymentIntentID {
		return nil, order.ErrOrderNotFound
	}
	o := s.order
	return &o, nil
}

func (s *stubOrders) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	s.order.StripePaymentIntentID = intentID
	return nil
}

func (s *stubOrders) HandleOrderEvent(ctx context.Context, orderID string, event order.OrderEvent) (*models.Order, error) {
	updated, err := order.ApplyOrderEvent(s.order, event, time.Now())
	if err != nil {
		return &s.order, err
	}
	s.order = updated
	return &updated, nil
}

type noopLocker struct{}

func (noopLocker) WithOrderLock(orderID, owner string, fn func() error) error { return fn() }

func newTestRouter(orders *stubOrders) (*gin.Engine, *memEventStore) {
	gin.SetMode(gin.TestMode)
	store := newMemEventStore()
	processor := payment.NewProcessor(store, orders, noopLocker{}, logger.NewLogger())
	h := NewWebhookHandler(processor, "", logger.NewLogger())

	engine := gin.New()
	engine.POST("/webhooks/stripe", h.HandleStripeWebhook)
	engine.GET("/webhooks/orders/:orderId/events", h.ListOrderEvents)
	return engine, store
}

func pendingOrder() *stubOrders {
	return &stubOrders{order: models.Order{
		ID:            "ord-1",
		UserID:        "user-1",
		DesignID:      "dsg-1",
		OrderNumber:   "PM-1001",
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
	}}
}

func postEvent(t *testing.T, engine *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleStripeWebhookAppliesPayment(t *testing.T) {
	orders := pendingOrder()
	engine, _ := newTestRouter(orders)

	body := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"order_id":"ord-1"}}}}`
	rec := postEvent(t, engine, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if orders.order.Status != models.OrderConfirmed || orders.order.PaymentStatus != models.PaymentPaid {
		t.Fatalf("order not settled: %s/%s", orders.order.Status, orders.order.PaymentStatus)
	}

	var resp struct {
		Message string                  `json:"message"`
		Data    models.ProcessingResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("undecodable response: %v", err)
	}
	if resp.Message != "event processed" || resp.Data.Outcome != models.OutcomeApplied {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleStripeWebhookRedeliveryIsAcknowledged(t *testing.T) {
	orders := pendingOrder()
	engine, _ := newTestRouter(orders)

	body := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"order_id":"ord-1"}}}}`
	postEvent(t, engine, body)
	rec := postEvent(t, engine, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec.Code)
	}
	var resp struct {
		Message string                  `json:"message"`
		Data    models.ProcessingResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("undecodable response: %v", err)
	}
	if resp.Message != "event already processed" {
		t.Fatalf("expected redelivery acknowledgement, got %q", resp.Message)
	}
	if resp.Data.Outcome != models.OutcomeApplied {
		t.Fatalf("redelivery must return the stored result, got %+v", resp.Data)
	}
}

func TestHandleStripeWebhookRejectsAnonymousEnvelope(t *testing.T) {
	engine, _ := newTestRouter(pendingOrder())

	rec := postEvent(t, engine, `{"type":"payment_intent.succeeded"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for envelope without id, got %d", rec.Code)
	}
}

func TestHandleStripeWebhookAcknowledgesUnknownType(t *testing.T) {
	engine, store := newTestRouter(pendingOrder())

	rec := postEvent(t, engine, `{"id":"evt_9","type":"customer.created","data":{"object":{}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored type, got %d", rec.Code)
	}
	ev, _ := store.GetEvent("evt_9")
	if ev == nil || ev.Result == nil || ev.Result.Outcome != models.OutcomeIgnoredUnknownType {
		t.Fatalf("expected durable ignored_unknown_type record, got %+v", ev)
	}
}

func TestListOrderEventsReturnsAuditTrail(t *testing.T) {
	orders := pendingOrder()
	engine, _ := newTestRouter(orders)

	body := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"order_id":"ord-1"}}}}`
	postEvent(t, engine, body)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/orders/ord-1/events", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data []models.PaymentEvent `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("undecodable response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].EventID != "evt_1" {
		t.Fatalf("expected one recorded event for ord-1, got %+v", resp.Data)
	}
}
