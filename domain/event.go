package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrMalformedEvent = errors.New("malformed event")

// Event is the envelope carried on every relay frame. Payload is opaque to
// the relay; its schema belongs to the producer and consumer of the topic.
type Event struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event for topic.
func NewEvent(topic string, payload any) (Event, error) {
	if topic == "" {
		return Event{}, fmt.Errorf("%w: empty topic", ErrMalformedEvent)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Event{Topic: topic, Payload: raw}, nil
}

// DecodeEvent parses a frame into an Event. Anything that is not a UTF-8
// JSON object with a non-empty string topic is rejected with
// ErrMalformedEvent.
func DecodeEvent(data []byte) (Event, error) {
	if !utf8.Valid(data) {
		return Event{}, fmt.Errorf("%w: invalid utf-8", ErrMalformedEvent)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEvent)
	}

	var evt Event
	if err := json.Unmarshal(trimmed, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Topic == "" {
		return Event{}, fmt.Errorf("%w: missing topic", ErrMalformedEvent)
	}
	return evt, nil
}

// Encode returns the wire form of the event. A nil payload encodes as null.
// Payloads that are not valid UTF-8 are refused since receivers drop the
// connection on such a text frame.
func (e Event) Encode() ([]byte, error) {
	if e.Topic == "" {
		return nil, fmt.Errorf("%w: empty topic", ErrMalformedEvent)
	}
	if !utf8.Valid(e.Payload) {
		return nil, fmt.Errorf("%w: invalid utf-8 payload", ErrMalformedEvent)
	}
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEvent, e.Topic)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return nil
}
