package models

import (
	"encoding/json"
	"time"
)

// Processing outcomes recorded against every ingested payment event.
const (
	OutcomeApplied            = "applied"
	OutcomeDuplicate          = "duplicate"
	OutcomeIgnoredIllegal     = "ignored_illegal_transition"
	OutcomeIgnoredUnknownType = "ignored_unknown_type"
	OutcomeMalformedPayload   = "malformed_payload"
	OutcomeOrderNotFound      = "order_not_found"
)

// ProcessingResult is what ingestion stored for an event. Redelivery of the
// same event id returns this verbatim.
type ProcessingResult struct {
	Outcome       string        `json:"outcome"`
	Detail        string        `json:"detail,omitempty"`
	OrderID       string        `json:"order_id,omitempty"`
	OrderStatus   OrderStatus   `json:"order_status,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

// PaymentEvent is one row per external gateway event id. Append-only; the
// processing result is recorded exactly once.
type PaymentEvent struct {
	ID          string            `json:"id"`
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Result      *ProcessingResult `json:"result,omitempty"`
	OrderID     string            `json:"order_id,omitempty"`
	ProcessedAt time.Time         `json:"processed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
