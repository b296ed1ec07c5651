// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus defines the message-bus contract the registry core is built
// against, together with the channel names and payload shapes of the wire
// protocol and a Redis pub/sub implementation.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Envelope is the JSON wrapper every bus message carries.
type Envelope struct {
	Type     string          `json:"type"`
	SenderID string          `json:"senderId"`
	Payload  json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope with the payload marshaled to JSON.
func NewEnvelope(msgType, senderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, SenderID: senderID, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Handler consumes one envelope delivered on a subscribed channel.
type Handler func(ctx context.Context, env Envelope)

// Subscription is a live channel subscription.
type Subscription interface {
	// Unsubscribe stops delivery and releases the subscription.
	Unsubscribe() error
}

// Bus is the abstract pub/sub transport. Directed sends are plain publishes
// on a node-specific channel; request/reply is layered on top by Request.
type Bus interface {
	// Publish sends an envelope to every subscriber of the channel.
	Publish(ctx context.Context, channel string, env Envelope) error
	// Subscribe registers a handler for a channel. Handlers run on the
	// bus's dispatch workers and must not block indefinitely.
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)
	// Close releases the transport. Outstanding subscriptions become inert.
	Close() error
}
