package models

import "time"

// Kafka lifecycle event kinds.
const (
	DesignEventRenderQueued    = "design.render.queued"
	DesignEventRenderStarted   = "design.render.started"
	DesignEventRenderCompleted = "design.render.completed"
	DesignEventRenderFailed    = "design.render.failed"

	OrderEventCreated   = "order.created"
	OrderEventConfirmed = "order.confirmed"
	OrderEventCancelled = "order.cancelled"
	OrderEventRefunded  = "order.refunded"
)

// DesignEvent is published on the design lifecycle topic and fanned out to
// SSE subscribers.
type DesignEvent struct {
	Kind        string       `json:"kind"`
	DesignID    string       `json:"design_id"`
	UserID      string       `json:"user_id"`
	JobID       string       `json:"job_id,omitempty"`
	Status      DesignStatus `json:"status"`
	ArtifactURL string       `json:"artifact_url,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// OrderLifecycleEvent is published on the order lifecycle topic.
type OrderLifecycleEvent struct {
	Kind          string        `json:"kind"`
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Amount        int64         `json:"amount"`
	Timestamp     time.Time     `json:"timestamp"`
}
