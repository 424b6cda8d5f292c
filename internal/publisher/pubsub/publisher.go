// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Attributed payloads contribute Pub/Sub message attributes.
type Attributed interface {
	Attributes() map[string]string
}

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Publish marshals the payload to JSON and publishes it, blocking until the
// server acknowledges the message. The topic argument is ignored; the
// wrapped publisher is already bound to one topic.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p == nil || p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	msg, err := buildMessage(payload)
	if err != nil {
		return "", err
	}
	result := p.publisher.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func buildMessage(payload any) (*pubsub.Message, error) {
	var data []byte
	switch v := payload.(type) {
	case json.RawMessage:
		data = v
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		data = encoded
	}
	msg := &pubsub.Message{Data: data}
	if a, ok := payload.(Attributed); ok {
		attrs := a.Attributes()
		if len(attrs) > 0 {
			msg.Attributes = make(map[string]string, len(attrs))
			for k, v := range attrs {
				if v != "" {
					msg.Attributes[k] = v
				}
			}
		}
	}
	return msg, nil
}
