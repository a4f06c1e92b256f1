package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository instances.
type Repositories struct {
	WebhookEvents WebhookEventRepository
	DeliveryStats DeliveryStatRepository
}

// Factory manages repository instances and ensures they are singletons.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory.
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns a singleton instance of all repositories.
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = &Repositories{
			WebhookEvents: NewWebhookEventRepository(f.db),
			DeliveryStats: NewDeliveryStatRepository(f.db),
		}
	})
	return f.repos
}

// GetWebhookEventRepository returns the webhook event repository instance.
func (f *Factory) GetWebhookEventRepository() WebhookEventRepository {
	return f.GetRepositories().WebhookEvents
}

// GetDeliveryStatRepository returns the delivery stat repository instance.
func (f *Factory) GetDeliveryStatRepository() DeliveryStatRepository {
	return f.GetRepositories().DeliveryStats
}
