package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nimbusbilling/subrelay/app/controllers"
	"github.com/nimbusbilling/subrelay/internal/pkg/middleware"
)

// ApiRouter installs the key-protected management API.
type ApiRouter struct {
	apiKey        string
	subscriptions *controllers.SubscriptionController
	stats         *controllers.StatsController
}

func NewApiRouter(apiKey string, subscriptions *controllers.SubscriptionController, stats *controllers.StatsController) *ApiRouter {
	return &ApiRouter{apiKey: apiKey, subscriptions: subscriptions, stats: stats}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group("/v1", limiter.New(), middleware.APIKeyAuthMiddleware(h.apiKey))

	v1.Get("/plans", h.subscriptions.HandleListPlans)
	v1.Get("/stats", h.stats.HandleGetStats)

	customer := v1.Group("/customer/:uid")
	customer.Get("/", h.subscriptions.HandleGetCustomer)
	customer.Post("/", h.subscriptions.HandleUpdatePayment)
	customer.Delete("/", h.subscriptions.HandleDeleteCustomer)
	customer.Get("/subscriptions", h.subscriptions.HandleSubscriptionStatus)
	customer.Post("/subscriptions", h.subscriptions.HandleSubscribe)
	customer.Delete("/subscriptions/:sub_id", h.subscriptions.HandleCancelSubscription)
}
