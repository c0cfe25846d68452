package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printmill/internal/auth"
	"printmill/internal/models"
	"printmill/internal/order"
	"printmill/internal/order/slip"
	"printmill/internal/utils"
)

type Handler struct {
	OrderService  *order.OrderService
	SlipGenerator *slip.SlipGenerator
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.OrderService.CreateOrder(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(utils.SuccessResponse("order created", o))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListOrders(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "Could not list orders: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, order.EventShip)
}

func (h *Handler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, order.EventDeliver)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, order.EventCancel)
}

// PackingSlip returns the signed QR for a confirmed (or later) order as PNG.
func (h *Handler) PackingSlip(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}
	if o.Status == models.OrderPending || o.Status == models.OrderCancelled {
		http.Error(w, "Packing slip is only available for confirmed orders", http.StatusConflict)
		return
	}

	png, err := h.SlipGenerator.GenerateSlipQR(*o)
	if err != nil {
		http.Error(w, "Could not generate packing slip: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// VerifySlip checks a scanned packing slip payload. Warehouse scanners post
// the raw QR contents and get back whether the slip is genuine and still
// matches the order on file.
func (h *Handler) VerifySlip(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "Could not read slip payload", http.StatusBadRequest)
		return
	}

	payload, valid := h.SlipGenerator.VerifySlip(data)
	if !valid {
		http.Error(w, "Invalid slip signature", http.StatusBadRequest)
		return
	}

	o, err := h.OrderService.GetOrder(r.Context(), payload.OrderID)
	if err != nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	if o.OrderNumber != payload.OrderNumber || o.DesignID != payload.DesignID || o.Quantity != payload.Quantity {
		http.Error(w, "Slip does not match order on file", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("slip verified", map[string]interface{}{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"status":       o.Status,
		"issued_at":    payload.IssuedAt,
	}))
}

func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request, event order.OrderEvent) {
	o, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}

	updated, err := h.OrderService.HandleOrderEvent(r.Context(), o.ID, event)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("order updated", updated))
}

// loadOwnOrder resolves the path order and rejects access across users. A
// false return means the response was already written.
func (h *Handler) loadOwnOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID := chi.URLParam(r, "orderId")
	o, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return nil, false
	}
	if o.UserID != auth.UserID(r.Context()) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return nil, false
	}
	return o, true
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, order.ErrDesignNotReady):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, order.ErrNotDesignOwner),
		errors.Is(err, order.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrIllegalTransition),
		errors.Is(err, order.ErrStaleOrder):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Could not process order: "+err.Error(), http.StatusInternalServerError)
	}
}
