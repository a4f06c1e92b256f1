package relay

import (
	"context"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nimbusbilling/subrelay/internal/pkg/relay/routes"
)

// handlePaymentIntentSucceeded enriches the payment with its invoice to
// recover the subscription id and billing period, then forwards the charge
// summary to the CRM. Card details come from the first charge in received
// order; the amount paid nets refunds across all charges.
func (d *Dispatcher) handlePaymentIntentSucceeded(ctx context.Context, env *Envelope) error {
	obj := env.Object.(*PaymentIntentObject)

	if obj.Invoice == "" {
		return clientErrorf("payment intent %s carries no invoice reference", obj.ID)
	}
	invoice, err := d.lookup.GetInvoice(ctx, obj.Invoice)
	if err != nil {
		return lookupError(err, "invoice", obj.Invoice)
	}

	if len(obj.Charges.Data) == 0 {
		return clientErrorf("payment intent %s carries no charges", obj.ID)
	}
	first := obj.Charges.Data[0]

	payload := NewPayload(env.ID, env.Type).
		Set("subscription_id", invoice.SubscriptionID).
		Set("period_end", invoice.PeriodEnd).
		Set("period_start", invoice.PeriodStart).
		Set("brand", first.PaymentMethodDetails.Card.Brand).
		Set("last4", first.PaymentMethodDetails.Card.Last4).
		Set("exp_month", first.PaymentMethodDetails.Card.ExpMonth).
		Set("exp_year", first.PaymentMethodDetails.Card.ExpYear).
		Set("charge_id", first.ID).
		Set("invoice_id", obj.Invoice).
		Set("customer_id", obj.Customer).
		Set("amount_paid", obj.AmountPaid()).
		Set("created", obj.Created).
		Set("currency", obj.Currency)
	fiberlog.Infof("[Relay] Payment intent succeeded invoice_id=%s subscription_id=%s", obj.Invoice, invoice.SubscriptionID)
	return d.send(ctx, []routes.ID{routes.Salesforce}, payload)
}
