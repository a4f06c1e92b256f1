package relay

import (
	"bytes"
	"encoding/json"
)

type field struct {
	key   string
	value any
}

// Payload is the canonical flat object sent to a downstream route. Fields
// serialize in insertion order so outbound bodies are byte-stable, which
// keeps golden-file assertions possible downstream.
type Payload struct {
	fields []field
}

// NewPayload starts a payload with the event id and type leading, the shape
// every enriched message shares.
func NewPayload(eventID, eventType string) *Payload {
	p := &Payload{}
	return p.Set("event_id", eventID).Set("event_type", eventType)
}

// NewBarePayload starts an empty payload for the few messages that do not
// carry the event preamble.
func NewBarePayload() *Payload {
	return &Payload{}
}

// Set appends a field. A repeated key overwrites the earlier value in
// place, keeping its original position. Nil values are kept as JSON null;
// callers substitute defaults before calling when a field must not be null.
func (p *Payload) Set(key string, value any) *Payload {
	for i := range p.fields {
		if p.fields[i].key == key {
			p.fields[i].value = value
			return p
		}
	}
	p.fields = append(p.fields, field{key: key, value: value})
	return p
}

// Get returns the value for a key and whether it is present.
func (p *Payload) Get(key string) (any, bool) {
	for _, f := range p.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// Keys returns the field names in serialization order.
func (p *Payload) Keys() []string {
	keys := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		keys = append(keys, f.key)
	}
	return keys
}

// MarshalJSON writes the fields as a flat JSON object in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode serializes the payload for sending.
func (p *Payload) Encode() ([]byte, error) {
	return p.MarshalJSON()
}
