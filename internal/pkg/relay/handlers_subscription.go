package relay

import (
	"context"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nimbusbilling/subrelay/internal/pkg/relay/routes"
)

// Subscription events correlate the provider customer back to a local user
// id via customer metadata. A subscription event with no resolvable user is
// not actionable and rejects so the provider redelivers once the data
// integrity issue upstream is fixed.

func (d *Dispatcher) resolveUserID(ctx context.Context, customerID string) (string, error) {
	customer, err := d.lookup.GetCustomer(ctx, customerID)
	if err != nil {
		return "", lookupError(err, "customer", customerID)
	}
	userID := customer.UserID()
	if userID == "" {
		return "", clientErrorf("userid is missing for customer %s", customerID)
	}
	return userID, nil
}

func (d *Dispatcher) handleSubscriptionCreated(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*SubscriptionObject)
	if _, err := d.resolveUserID(ctx, obj.Customer); err != nil {
		return err
	}

	payload := NewPayload(env.ID, env.Type).
		Set("active", obj.ActiveOrTrialing()).
		Set("subscriptionId", obj.ID).
		Set("productName", obj.Plan.Nickname).
		Set("eventId", env.ID).
		Set("eventCreatedAt", env.Created).
		Set("messageCreatedAt", d.now().Unix()).
		Set("invoice_id", obj.LatestInvoice).
		Set("plan_amount", obj.Plan.Amount).
		Set("customer_id", obj.Customer).
		Set("nickname", obj.Plan.Nickname)
	fiberlog.Infof("[Relay] Subscription created subscription_id=%s customer_id=%s", obj.ID, obj.Customer)
	return d.send(ctx, []routes.ID{routes.Firefox}, payload)
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*SubscriptionObject)
	if _, err := d.resolveUserID(ctx, obj.Customer); err != nil {
		return err
	}

	// The notification contract wants eventId; the CRM importer still reads
	// event_id, so this message carries both spellings.
	payload := NewBarePayload().
		Set("active", obj.ActiveOrTrialing()).
		Set("subscriptionId", obj.ID).
		Set("productName", obj.Plan.Nickname).
		Set("eventId", env.ID).
		Set("event_id", env.ID).
		Set("eventCreatedAt", env.Created).
		Set("messageCreatedAt", d.now().Unix())
	fiberlog.Infof("[Relay] Subscription deleted subscription_id=%s customer_id=%s", obj.ID, obj.Customer)
	return d.send(ctx, []routes.ID{routes.Firefox}, payload)
}

// handleSubscriptionUpdated splits three ways: a pending cancellation, a
// freshly started billing period, or nothing worth forwarding.
func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*SubscriptionObject)
	userID, err := d.resolveUserID(ctx, obj.Customer)
	if err != nil {
		return err
	}

	switch {
	case obj.CancelAtPeriodEnd:
		payload := NewPayload(env.ID, env.Type).
			Set("uid", userID).
			Set("customer_id", obj.Customer).
			Set("subscriptionId", obj.ID).
			Set("subscription_id", obj.ID).
			Set("plan_amount", obj.Plan.Amount).
			Set("canceled_at", obj.CanceledAt).
			Set("cancel_at", obj.CancelAt).
			Set("cancel_at_period_end", obj.CancelAtPeriodEnd).
			Set("nickname", obj.Plan.Nickname).
			Set("eventCreatedAt", env.Created).
			Set("messageCreatedAt", d.now().Unix()).
			Set("eventId", env.ID)
		fiberlog.Infof("[Relay] Subscription cancel at period end subscription_id=%s", obj.ID)
		return d.send(ctx, []routes.ID{routes.Firefox, routes.Salesforce}, payload)

	case d.isNewBillingPeriod(obj):
		payload := NewPayload(env.ID, env.Type).
			Set("uid", userID).
			Set("active", obj.ActiveOrTrialing()).
			Set("subscriptionId", obj.ID).
			Set("subscription_id", obj.ID).
			Set("productName", obj.Plan.Nickname).
			Set("nickname", obj.Plan.Nickname).
			Set("eventCreatedAt", env.Created).
			Set("messageCreatedAt", d.now().Unix()).
			Set("invoice_id", obj.LatestInvoice).
			Set("customer_id", obj.Customer).
			Set("created", obj.Plan.Created).
			Set("amount_paid", obj.Plan.Amount).
			Set("eventId", env.ID)
		fiberlog.Infof("[Relay] Subscription new recurring period subscription_id=%s", obj.ID)
		return d.send(ctx, []routes.ID{routes.Firefox, routes.Salesforce}, payload)

	default:
		fiberlog.Infof("[Relay] Subscription update with no actionable change subscription_id=%s", obj.ID)
		return nil
	}
}

// isNewBillingPeriod detects a renewal: the provider stamps the new period
// start slightly ahead of our processing time when the update announces a
// just-created billing period.
func (d *Dispatcher) isNewBillingPeriod(obj *SubscriptionObject) bool {
	return obj.CurrentPeriodStart > d.now().Unix()
}
