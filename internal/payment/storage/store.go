package storage

import (
	"printmill/internal/models"
)

type Store interface {
	// Event log operations
	InsertEventIfAbsent(event *models.PaymentEvent) (*models.PaymentEvent, bool, error)
	RecordResult(eventID string, orderID string, result *models.ProcessingResult) error
	GetEvent(eventID string) (*models.PaymentEvent, error)
	ListEventsByOrder(orderID string, limit, offset int) ([]*models.PaymentEvent, error)

	// Health and maintenance
	Close() error
	HealthCheck() error
}
