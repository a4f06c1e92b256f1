package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ErrNotFound marks provider lookups for ids that do not exist.
var ErrNotFound = errors.New("payments: resource not found")

// Lookup is the read-only slice of the provider consumed by the relay core.
type Lookup interface {
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

// Service is the full provider surface used by subscription management.
type Service interface {
	Lookup
	CreateCustomer(ctx context.Context, userID, email, source string) (*Customer, error)
	UpdateSource(ctx context.Context, customerID, source string) error
	Subscribe(ctx context.Context, customerID, planID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	ListPlans(ctx context.Context) ([]Plan, error)
}

// StripeClient implements Service against the Stripe API.
type StripeClient struct {
	api *client.API
}

// NewStripeClient builds a client bound to the given secret key.
func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{api: client.New(apiKey, nil)}
}

func (c *StripeClient) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("subscriptions")
	params.AddExpand("sources")
	cust, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, wrapErr(err, "customer "+customerID)
	}
	return convertCustomer(cust), nil
}

func (c *StripeClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	params := &stripe.InvoiceParams{Params: stripe.Params{Context: ctx}}
	inv, err := c.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, wrapErr(err, "invoice "+invoiceID)
	}
	return convertInvoice(inv), nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, userID, email, source string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Params:      stripe.Params{Context: ctx},
		Email:       stripe.String(email),
		Description: stripe.String(userID),
	}
	if source != "" {
		params.Source = stripe.String(source)
	}
	params.AddMetadata(MetadataUserIDKey, userID)
	// A retried create must not mint a second provider customer.
	params.SetIdempotencyKey(uuid.NewString())
	cust, err := c.api.Customers.New(params)
	if err != nil {
		return nil, wrapErr(err, "create customer")
	}
	return convertCustomer(cust), nil
}

func (c *StripeClient) UpdateSource(ctx context.Context, customerID, source string) error {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Source: stripe.String(source),
	}
	if _, err := c.api.Customers.Update(customerID, params); err != nil {
		return wrapErr(err, "customer "+customerID)
	}
	return nil
}

func (c *StripeClient) Subscribe(ctx context.Context, customerID, planID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Plan: stripe.String(planID)},
		},
	}
	params.SetIdempotencyKey(uuid.NewString())
	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, wrapErr(err, "plan "+planID)
	}
	converted := convertSubscription(sub)
	return &converted, nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionCancelParams{Params: stripe.Params{Context: ctx}}
	sub, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, wrapErr(err, "subscription "+subscriptionID)
	}
	converted := convertSubscription(sub)
	return &converted, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapErr(err, "subscription "+subscriptionID)
	}
	converted := convertSubscription(sub)
	return &converted, nil
}

func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(100)},
		Customer:   stripe.String(customerID),
		Status:     stripe.String("all"),
	}
	iter := c.api.Subscriptions.List(params)
	var subs []Subscription
	for iter.Next() {
		subs = append(subs, convertSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, wrapErr(err, "customer "+customerID)
	}
	return subs, nil
}

func (c *StripeClient) ListPlans(ctx context.Context) ([]Plan, error) {
	params := &stripe.PlanListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(100)},
	}
	iter := c.api.Plans.List(params)
	var plans []Plan
	for iter.Next() {
		p := iter.Plan()
		productID := ""
		if p.Product != nil {
			productID = p.Product.ID
		}
		plans = append(plans, Plan{
			ID:        p.ID,
			ProductID: productID,
			Interval:  string(p.Interval),
			Amount:    p.Amount,
			Currency:  string(p.Currency),
			Nickname:  p.Nickname,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapErr(err, "plans")
	}
	return plans, nil
}

func convertCustomer(cust *stripe.Customer) *Customer {
	out := &Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Metadata: cust.Metadata,
	}
	if cust.Subscriptions != nil {
		for _, sub := range cust.Subscriptions.Data {
			out.Subscriptions = append(out.Subscriptions, convertSubscription(sub))
		}
	}
	if cust.Sources != nil && len(cust.Sources.Data) > 0 && cust.Sources.Data[0].Card != nil {
		card := cust.Sources.Data[0].Card
		out.DefaultCard = &Card{
			Funding:  string(card.Funding),
			Brand:    string(card.Brand),
			Last4:    card.Last4,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
		}
	}
	return out
}

func convertSubscription(sub *stripe.Subscription) Subscription {
	out := Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		CancelAt:           sub.CancelAt,
		EndedAt:            sub.EndedAt,
	}
	if sub.Plan != nil {
		out.PlanID = sub.Plan.ID
		out.PlanNickname = sub.Plan.Nickname
		out.PlanAmount = sub.Plan.Amount
	}
	if sub.LatestInvoice != nil {
		out.LatestInvoiceID = sub.LatestInvoice.ID
	}
	return out
}

func convertInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:          inv.ID,
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	return out
}

func wrapErr(err error, what string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		}
	}
	return fmt.Errorf("payments: %s: %w", what, err)
}
