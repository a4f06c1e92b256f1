package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event types this service acts on. Everything else is acknowledged and
// dropped.
const (
	TypeCustomerCreated        = "customer.created"
	TypeCustomerUpdated        = "customer.updated"
	TypeCustomerDeleted        = "customer.deleted"
	TypeCustomerSourceExpiring = "customer.source.expiring"
	TypeSubscriptionCreated    = "customer.subscription.created"
	TypeSubscriptionUpdated    = "customer.subscription.updated"
	TypeSubscriptionDeleted    = "customer.subscription.deleted"
	TypePaymentIntentSucceeded = "payment_intent.succeeded"
)

// Envelope is one inbound provider event, with its nested object already
// decoded into the variant matching the event type. Object is nil for event
// types this service does not handle.
type Envelope struct {
	ID      string
	Type    string
	Created int64
	Object  any
}

// CustomerObject is the nested object of customer.created/updated/deleted.
type CustomerObject struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// CardSourceObject is the nested object of customer.source.expiring.
type CardSourceObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Last4    string `json:"last4"`
	Brand    string `json:"brand"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// PlanObject is the plan block embedded in subscription events.
type PlanObject struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Amount   int64  `json:"amount"`
	Created  int64  `json:"created"`
}

// SubscriptionObject is the nested object of customer.subscription.* events.
type SubscriptionObject struct {
	ID                 string     `json:"id"`
	Customer           string     `json:"customer"`
	Status             string     `json:"status"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         int64      `json:"canceled_at"`
	CancelAt           int64      `json:"cancel_at"`
	CurrentPeriodStart int64      `json:"current_period_start"`
	CurrentPeriodEnd   int64      `json:"current_period_end"`
	LatestInvoice      string     `json:"latest_invoice"`
	Plan               PlanObject `json:"plan"`
}

// ActiveOrTrialing reports whether the subscription entitles the user right
// now.
func (s *SubscriptionObject) ActiveOrTrialing() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// ChargeObject is one charge embedded in a payment_intent event.
type ChargeObject struct {
	ID                   string `json:"id"`
	Amount               int64  `json:"amount"`
	AmountRefunded       int64  `json:"amount_refunded"`
	PaymentMethodDetails struct {
		Card struct {
			Brand    string `json:"brand"`
			Last4    string `json:"last4"`
			ExpMonth int64  `json:"exp_month"`
			ExpYear  int64  `json:"exp_year"`
		} `json:"card"`
	} `json:"payment_method_details"`
}

// PaymentIntentObject is the nested object of payment_intent.succeeded.
type PaymentIntentObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Invoice  string `json:"invoice"`
	Created  int64  `json:"created"`
	Currency string `json:"currency"`
	Charges  struct {
		Data []ChargeObject `json:"data"`
	} `json:"charges"`
}

// AmountPaid is the sum over all charges of amount minus refunds.
func (p *PaymentIntentObject) AmountPaid() int64 {
	var total int64
	for _, charge := range p.Charges.Data {
		total += charge.Amount - charge.AmountRefunded
	}
	return total
}

// ParseEvent decodes the nested object for a known event type. The raw
// object bytes are the provider's `data.object` block; the surrounding id,
// type and created fields arrive already verified by the transport layer.
// Unknown types produce an envelope with a nil Object.
func ParseEvent(id, eventType string, created int64, objectRaw []byte) (*Envelope, error) {
	env := &Envelope{
		ID:      strings.TrimSpace(id),
		Type:    strings.TrimSpace(eventType),
		Created: created,
	}

	var obj any
	switch env.Type {
	case TypeCustomerCreated, TypeCustomerUpdated, TypeCustomerDeleted:
		obj = &CustomerObject{}
	case TypeCustomerSourceExpiring:
		obj = &CardSourceObject{}
	case TypeSubscriptionCreated, TypeSubscriptionUpdated, TypeSubscriptionDeleted:
		obj = &SubscriptionObject{}
	case TypePaymentIntentSucceeded:
		obj = &PaymentIntentObject{}
	default:
		return env, nil
	}

	if err := json.Unmarshal(objectRaw, obj); err != nil {
		return nil, fmt.Errorf("decode %s object: %w", env.Type, err)
	}
	env.Object = obj
	return env, nil
}
