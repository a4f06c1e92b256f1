package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/nimbusbilling/subrelay/app/models"
	"github.com/nimbusbilling/subrelay/app/repository"
	"github.com/nimbusbilling/subrelay/internal/pkg/metrics/counter"
	"github.com/nimbusbilling/subrelay/internal/pkg/relay"
)

const webhookTimeout = 25 * time.Second

// WebhookController receives provider webhooks, records them for
// idempotency and hands verified events to the relay dispatcher.
type WebhookController struct {
	secret     string
	events     repository.WebhookEventRepository
	dispatcher *relay.Dispatcher
	counters   *counter.Counters
}

func NewWebhookController(secret string, events repository.WebhookEventRepository, dispatcher *relay.Dispatcher, counters *counter.Counters) *WebhookController {
	return &WebhookController{
		secret:     secret,
		events:     events,
		dispatcher: dispatcher,
		counters:   counters,
	}
}

// HandleStripeWebhook verifies, records and dispatches one Stripe event.
// Rejected events answer 500 so Stripe redelivers them.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(rawBody, signature, wc.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		fiberlog.Warnf("[Webhook] Signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	stored := &models.WebhookEvent{
		Provider:        models.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
	}
	created, err := wc.events.CreateIfNotExists(stored)
	if err != nil {
		fiberlog.Errorf("[Webhook] Failed to persist event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// A redelivery of a rejected event runs again; only events that already
	// finished short-circuit.
	if !created && stored.Outcome != string(relay.StatusRejected) && stored.Outcome != "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	env, err := relay.ParseEvent(event.ID, string(event.Type), event.Created, event.Data.Raw)
	if err != nil {
		_ = wc.events.MarkProcessed(stored.ID, string(relay.StatusRejected), err)
		wc.counters.Dispatched(string(relay.StatusRejected))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	outcome := wc.dispatcher.Dispatch(ctx, env)
	_ = wc.events.MarkProcessed(stored.ID, string(outcome.Status), outcome.Err)
	wc.counters.Dispatched(string(outcome.Status))

	switch outcome.Status {
	case relay.StatusIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	case relay.StatusRejected:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}
