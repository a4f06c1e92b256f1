package repository

import (
	"github.com/nimbusbilling/subrelay/app/models"
)

// WebhookEventRepository defines the database operations for webhook-event
// audit rows.
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless (provider, event id) was
	// seen before. Returns true when the row was created by this call.
	CreateIfNotExists(event *models.WebhookEvent) (bool, error)
	GetByProviderEventID(provider, providerEventID string) (*models.WebhookEvent, error)
	MarkProcessed(id uint, outcome string, processingErr error) error
	ListUnprocessed(limit int) ([]models.WebhookEvent, error)
	Count() (int64, error)
}

// DeliveryStatRepository persists flushed per-route delivery counters.
type DeliveryStatRepository interface {
	AddCounts(route string, delivered, failed int64) error
	List() ([]models.DeliveryStat, error)
}
