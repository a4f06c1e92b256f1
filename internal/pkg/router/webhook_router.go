package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nimbusbilling/subrelay/app/controllers"
)

// WebhookRouter installs the provider-facing ingest endpoint. It carries no
// authentication middleware: the signature check inside the controller is
// the authentication.
type WebhookRouter struct {
	webhooks *controllers.WebhookController
}

func NewWebhookRouter(webhooks *controllers.WebhookController) *WebhookRouter {
	return &WebhookRouter{webhooks: webhooks}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group("/v1")
	v1.Post("/webhooks/stripe", h.webhooks.HandleStripeWebhook)
}
