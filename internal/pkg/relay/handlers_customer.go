package relay

import (
	"context"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nimbusbilling/subrelay/internal/pkg/relay/routes"
)

// Customer lifecycle events go to the CRM only and need no provider
// enrichment. The display name normalizes to "" so the CRM never sees a
// null business field; user_id is omitted entirely when the customer has no
// local correlation.

func (d *Dispatcher) handleCustomerCreated(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*CustomerObject)
	payload := NewPayload(env.ID, env.Type).
		Set("email", obj.Email).
		Set("customer_id", obj.ID).
		Set("name", obj.Name)
	if userID, ok := obj.Metadata["userid"]; ok {
		payload.Set("user_id", userID)
	}
	fiberlog.Infof("[Relay] Customer created customer_id=%s", obj.ID)
	return d.send(ctx, []routes.ID{routes.Salesforce}, payload)
}

func (d *Dispatcher) handleCustomerDeleted(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*CustomerObject)
	payload := NewPayload(env.ID, env.Type).
		Set("email", obj.Email).
		Set("customer_id", obj.ID).
		Set("name", obj.Name)
	if userID, ok := obj.Metadata["userid"]; ok {
		payload.Set("user_id", userID)
	}
	fiberlog.Infof("[Relay] Customer deleted customer_id=%s", obj.ID)
	return d.send(ctx, []routes.ID{routes.Salesforce}, payload)
}

func (d *Dispatcher) handleCustomerUpdated(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*CustomerObject)
	payload := NewPayload(env.ID, env.Type).
		Set("email", obj.Email).
		Set("customer_id", obj.ID).
		Set("name", obj.Name)
	fiberlog.Infof("[Relay] Customer updated customer_id=%s", obj.ID)
	return d.send(ctx, []routes.ID{routes.Salesforce}, payload)
}

// handleCustomerSourceExpiring enriches the card event with the nickname of
// the customer's first active subscription. A customer with no active
// subscription rejects the event rather than shipping a half-built payload.
func (d *Dispatcher) handleCustomerSourceExpiring(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*CardSourceObject)

	customer, err := d.lookup.GetCustomer(ctx, obj.Customer)
	if err != nil {
		return lookupError(err, "customer", obj.Customer)
	}

	nickname := ""
	found := false
	for _, sub := range customer.Subscriptions {
		if sub.Status == "active" {
			nickname = sub.PlanNickname
			found = true
			break
		}
	}
	if !found {
		return clientErrorf("customer %s has no active subscription for expiring source", obj.Customer)
	}

	payload := NewPayload(env.ID, env.Type).
		Set("email", customer.Email).
		Set("nickname", nickname).
		Set("customer_id", obj.Customer).
		Set("last4", obj.Last4).
		Set("brand", obj.Brand).
		Set("exp_month", obj.ExpMonth).
		Set("exp_year", obj.ExpYear)
	fiberlog.Infof("[Relay] Customer source expiring customer_id=%s nickname=%s", obj.Customer, nickname)
	return d.send(ctx, []routes.ID{routes.Salesforce}, payload)
}
