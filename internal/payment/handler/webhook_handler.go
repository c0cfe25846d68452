package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"

	"printmill/internal/logger"
	"printmill/internal/payment"
	"printmill/internal/utils"
)

type WebhookHandler struct {
	processor     *payment.Processor
	webhookSecret string
	logger        *logger.Logger
}

func NewWebhookHandler(processor *payment.Processor, webhookSecret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:     processor,
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

// HandleStripeWebhook ingests one gateway delivery. Anything durably recorded
// is acknowledged with 200, including events we decide to ignore; only
// signature failures and storage errors make the gateway redeliver.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Could not read request body", err.Error()))
		return
	}

	eventID, eventType, err := h.identifyEvent(c, body)
	if err != nil {
		h.logger.Warn("WEBHOOK", "Rejected delivery: "+err.Error())
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook delivery", err.Error()))
		return
	}

	result, firstDelivery, err := h.processor.Ingest(c.Request.Context(), eventID, eventType, body)
	if err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to ingest event %s: %v", eventID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Event ingestion failed", err.Error()))
		return
	}

	message := "event processed"
	if !firstDelivery {
		message = "event already processed"
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(message, result))
}

// identifyEvent verifies the signature when a secret is configured, otherwise
// trusts the payload's own id and type (local development).
func (h *WebhookHandler) identifyEvent(c *gin.Context, body []byte) (string, string, error) {
	if h.webhookSecret != "" {
		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.webhookSecret)
		if err != nil {
			return "", "", fmt.Errorf("signature verification failed: %v", err)
		}
		return event.ID, string(event.Type), nil
	}

	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", "", fmt.Errorf("undecodable event envelope: %v", err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return "", "", fmt.Errorf("event envelope missing id or type")
	}
	return envelope.ID, envelope.Type, nil
}

// ListOrderEvents serves the audit trail of deliveries recorded for an order.
func (h *WebhookHandler) ListOrderEvents(c *gin.Context) {
	orderID := c.Param("orderId")
	events, err := h.processor.ListOrderEvents(orderID, 50, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Could not list events", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("payment events", events))
}
