// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
)

// Request performs a request/reply exchange: subscribe to replyChannel,
// publish env on publishChannel, and return the first reply. The core never
// calls this on a node's behalf; it exists for node-side clients.
func Request(ctx context.Context, b Bus, publishChannel, replyChannel string, env Envelope, timeout time.Duration) (Envelope, error) {
	replies := make(chan Envelope, 1)
	sub, err := b.Subscribe(ctx, replyChannel, func(_ context.Context, reply Envelope) {
		select {
		case replies <- reply:
		default: // first reply wins
		}
	})
	if err != nil {
		return Envelope{}, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := b.Publish(ctx, publishChannel, env); err != nil {
		return Envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return Envelope{}, errors.NewTimeoutError(
			fmt.Sprintf("no reply on %s within %s", replyChannel, timeout), nil)
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}
