package relay

import (
	"context"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
	"github.com/nimbusbilling/subrelay/internal/pkg/relay/routes"
)

// Status is the per-event result reported to the transport layer.
type Status string

const (
	// StatusAccepted means a handler ran to completion.
	StatusAccepted Status = "accepted"
	// StatusIgnored means no handler exists for the event type.
	StatusIgnored Status = "ignored"
	// StatusRejected means the handler failed before sending anything; the
	// transport layer should signal the provider to redeliver.
	StatusRejected Status = "rejected"
)

// Outcome pairs the status with the rejection cause, if any.
type Outcome struct {
	Status Status
	Err    error
}

type handlerFunc func(ctx context.Context, env *Envelope) error

// Dispatcher selects and runs the handler for an inbound event. One
// Dispatcher serves all concurrent deliveries; it holds no per-event state.
type Dispatcher struct {
	lookup   payments.Lookup
	routes   *routes.Registry
	now      func() time.Time
	handlers map[string]handlerFunc
}

// Option tweaks dispatcher construction.
type Option func(*Dispatcher)

// WithClock overrides the wall clock used for send-time stamps and the
// renewal heuristic.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher wires the handler table. lookup serves provider
// enrichment; registry receives the fan-out.
func NewDispatcher(lookup payments.Lookup, registry *routes.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lookup: lookup,
		routes: registry,
		now:    time.Now,
	}
	d.handlers = map[string]handlerFunc{
		TypeCustomerCreated:        d.handleCustomerCreated,
		TypeCustomerUpdated:        d.handleCustomerUpdated,
		TypeCustomerDeleted:        d.handleCustomerDeleted,
		TypeCustomerSourceExpiring: d.handleCustomerSourceExpiring,
		TypeSubscriptionCreated:    d.handleSubscriptionCreated,
		TypeSubscriptionUpdated:    d.handleSubscriptionUpdated,
		TypeSubscriptionDeleted:    d.handleSubscriptionDeleted,
		TypePaymentIntentSucceeded: d.handlePaymentIntentSucceeded,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// classify returns the handler for an event type, or nil when the type is
// not part of the closed mapping.
func (d *Dispatcher) classify(eventType string) handlerFunc {
	return d.handlers[eventType]
}

// Dispatch classifies and runs the event. Unknown types are acknowledged
// without work; handler failures reject the event.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) Outcome {
	handler := d.classify(env.Type)
	if handler == nil {
		fiberlog.Debugf("[Relay] Ignoring event %s type=%s", env.ID, env.Type)
		return Outcome{Status: StatusIgnored}
	}
	if err := handler(ctx, env); err != nil {
		fiberlog.Errorf("[Relay] Event %s type=%s rejected: %v", env.ID, env.Type, err)
		return Outcome{Status: StatusRejected, Err: err}
	}
	return Outcome{Status: StatusAccepted}
}

// send serializes the payload and fans it out. Serialization failure is a
// handler failure; delivery failures are the registry's concern.
func (d *Dispatcher) send(ctx context.Context, ids []routes.ID, payload *Payload) error {
	body, err := payload.Encode()
	if err != nil {
		return err
	}
	d.routes.Send(ctx, ids, body)
	return nil
}
