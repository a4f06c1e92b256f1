// Package routes delivers canonical payloads to the fixed set of downstream
// destinations. Delivery is fire-and-forget: a failed send is logged and
// counted, never escalated to the dispatching handler, and a failure on one
// destination does not stop the others.
package routes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ID names a downstream destination. The set is closed; handlers pick a
// subset per event and never invent new members.
type ID string

const (
	// Salesforce is the CRM ingestion endpoint (basket).
	Salesforce ID = "salesforce"
	// Firefox is the internal notification endpoint.
	Firefox ID = "firefox"
)

// Sender delivers one serialized payload to one destination.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Observer counts delivery outcomes per route.
type Observer interface {
	Delivered(route string)
	Failed(route string)
}

// Registry resolves route ids to senders and fans one payload out to a
// subset of them. Sender configuration is fixed after setup; Send is safe
// for concurrent use.
type Registry struct {
	senders  map[ID]Sender
	observer Observer
}

// NewRegistry creates an empty registry. The observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{
		senders:  make(map[ID]Sender),
		observer: observer,
	}
}

// Register binds a sender to a route id. Call during setup only.
func (r *Registry) Register(id ID, sender Sender) {
	r.senders[id] = sender
}

// Send delivers the payload to every requested route independently.
func (r *Registry) Send(ctx context.Context, ids []ID, payload []byte) {
	for _, id := range ids {
		sender, ok := r.senders[id]
		if !ok {
			fiberlog.Errorf("[Relay] No sender registered for route %q", id)
			continue
		}
		if err := sender.Send(ctx, payload); err != nil {
			fiberlog.Errorf("[Relay] Delivery to %s failed: %v", id, err)
			if r.observer != nil {
				r.observer.Failed(string(id))
			}
			continue
		}
		if r.observer != nil {
			r.observer.Delivered(string(id))
		}
	}
}

type httpSender struct {
	url    string
	client *http.Client
}

// NewSalesforceSender posts payloads to the CRM basket endpoint. The basket
// authenticates via the API key appended to the URI.
func NewSalesforceSender(basketURI, apiKey string) Sender {
	return newHTTPSender(basketURI + apiKey)
}

// NewFirefoxSender posts payloads to the internal notification endpoint.
func NewFirefoxSender(notifyURI string) Sender {
	return newHTTPSender(notifyURI)
}

func newHTTPSender(url string) Sender {
	return &httpSender{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *httpSender) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("downstream returned status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
