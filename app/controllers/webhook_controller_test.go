package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusbilling/subrelay/app/models"
	"github.com/nimbusbilling/subrelay/internal/pkg/metrics/counter"
	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
	"github.com/nimbusbilling/subrelay/internal/pkg/relay"
	"github.com/nimbusbilling/subrelay/internal/pkg/relay/routes"
)

const testWebhookSecret = "whsec_test"

type memEventRepo struct {
	events map[string]*models.WebhookEvent
	nextID uint
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: map[string]*models.WebhookEvent{}}
}

func (r *memEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		*event = *existing
		return false, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = event
	return true, nil
}

func (r *memEventRepo) GetByProviderEventID(provider, providerEventID string) (*models.WebhookEvent, error) {
	if e, ok := r.events[provider+":"+providerEventID]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("not found")
}

func (r *memEventRepo) MarkProcessed(id uint, outcome string, processingErr error) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.Outcome = outcome
			if processingErr != nil {
				e.ProcessingError = processingErr.Error()
			}
			return nil
		}
	}
	return fmt.Errorf("not found")
}

func (r *memEventRepo) ListUnprocessed(int) ([]models.WebhookEvent, error) { return nil, nil }

func (r *memEventRepo) Count() (int64, error) { return int64(len(r.events)), nil }

type stubLookup struct {
	customers map[string]*payments.Customer
}

func (s *stubLookup) GetCustomer(_ context.Context, id string) (*payments.Customer, error) {
	if c, ok := s.customers[id]; ok {
		return c, nil
	}
	return nil, payments.ErrNotFound
}

func (s *stubLookup) GetInvoice(context.Context, string) (*payments.Invoice, error) {
	return nil, payments.ErrNotFound
}

type captureSender struct {
	bodies [][]byte
}

func (s *captureSender) Send(_ context.Context, payload []byte) error {
	s.bodies = append(s.bodies, append([]byte(nil), payload...))
	return nil
}

func newWebhookTestApp(t *testing.T, lookup payments.Lookup) (*fiber.App, *memEventRepo, *captureSender) {
	t.Helper()

	mr := miniredis.RunT(t)
	counters := counter.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	salesforce := &captureSender{}
	registry := routes.NewRegistry(counters)
	registry.Register(routes.Salesforce, salesforce)
	registry.Register(routes.Firefox, &captureSender{})

	repo := newMemEventRepo()
	dispatcher := relay.NewDispatcher(lookup, registry)
	ctl := NewWebhookController(testWebhookSecret, repo, dispatcher, counters)

	app := fiber.New()
	app.Post("/v1/webhooks/stripe", ctl.HandleStripeWebhook)
	return app, repo, salesforce
}

// signPayload builds a Stripe-Signature header for the raw body.
func signPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeEventBody(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":1700000000,"data":{"object":%s}}`, id, eventType, object))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, repo, _ := newWebhookTestApp(t, &stubLookup{})

	body := stripeEventBody("evt_1", "customer.created", `{"id":"cus_1"}`)
	assert.Equal(t, fiber.StatusBadRequest, postWebhook(t, app, body, "t=1,v1=deadbeef"))
	assert.Equal(t, fiber.StatusBadRequest, postWebhook(t, app, body, ""))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWebhookAcceptsCustomerCreated(t *testing.T) {
	app, repo, salesforce := newWebhookTestApp(t, &stubLookup{})

	body := stripeEventBody("evt_1", "customer.created",
		`{"id":"cus_1","email":"u@example.com","name":"Jo","metadata":{"userid":"user-123"}}`)
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, signPayload(body)))

	stored, err := repo.GetByProviderEventID(models.ProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "accepted", stored.Outcome)
	require.NotNil(t, stored.ProcessedAt)
	assert.Len(t, salesforce.bodies, 1)
}

func TestWebhookDuplicateEventShortCircuits(t *testing.T) {
	app, _, salesforce := newWebhookTestApp(t, &stubLookup{})

	body := stripeEventBody("evt_1", "customer.created",
		`{"id":"cus_1","email":"u@example.com","metadata":{}}`)
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, signPayload(body)))
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, signPayload(body)))

	// The second delivery was acknowledged without re-dispatching.
	assert.Len(t, salesforce.bodies, 1)
}

func TestWebhookIgnoresUnknownType(t *testing.T) {
	app, repo, salesforce := newWebhookTestApp(t, &stubLookup{})

	body := stripeEventBody("evt_2", "invoice.finalized", `{"id":"in_1"}`)
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, signPayload(body)))

	stored, err := repo.GetByProviderEventID(models.ProviderStripe, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, "ignored", stored.Outcome)
	assert.Empty(t, salesforce.bodies)
}

func TestWebhookRejectedEventAnswers500(t *testing.T) {
	// The subscription's customer resolves but carries no userid, so the
	// event must bounce for redelivery.
	lookup := &stubLookup{customers: map[string]*payments.Customer{
		"cus_1": {ID: "cus_1"},
	}}
	app, repo, _ := newWebhookTestApp(t, lookup)

	body := stripeEventBody("evt_3", "customer.subscription.created",
		`{"id":"sub_1","customer":"cus_1","status":"active","plan":{"nickname":"Pro"}}`)
	assert.Equal(t, fiber.StatusInternalServerError, postWebhook(t, app, body, signPayload(body)))

	stored, err := repo.GetByProviderEventID(models.ProviderStripe, "evt_3")
	require.NoError(t, err)
	assert.Equal(t, "rejected", stored.Outcome)
	assert.Contains(t, stored.ProcessingError, "userid is missing")

	// Redelivery of a rejected event is not treated as a duplicate.
	assert.Equal(t, fiber.StatusInternalServerError, postWebhook(t, app, body, signPayload(body)))
}
