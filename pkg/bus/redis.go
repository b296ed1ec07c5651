// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/haroldDOTsh/fulcrum/pkg/logger"
)

const defaultWorkers = 4

// Redis is a Bus implementation on Redis pub/sub. Incoming envelopes are
// dispatched to handlers on a shared bounded worker pool so a slow handler
// on one channel cannot starve the subscription readers.
type Redis struct {
	client redis.UniversalClient

	jobs chan job
	done chan struct{}

	closeOnce sync.Once
	workerWG  sync.WaitGroup
	readerWG  sync.WaitGroup
}

type job struct {
	ctx     context.Context
	handler Handler
	env     Envelope
}

// RedisOption configures a Redis bus.
type RedisOption func(*redisOptions)

type redisOptions struct {
	workers int
}

// WithWorkers sets the size of the dispatch worker pool.
func WithWorkers(n int) RedisOption {
	return func(o *redisOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// NewRedis creates a Redis-backed bus on an existing client. The caller
// retains ownership of the client; Close does not close it.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	o := redisOptions{workers: defaultWorkers}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Redis{
		client: client,
		jobs:   make(chan job, o.workers*8),
		done:   make(chan struct{}),
	}
	for i := 0; i < o.workers; i++ {
		b.workerWG.Add(1)
		go b.worker()
	}
	return b
}

func (b *Redis) worker() {
	defer b.workerWG.Done()
	for {
		select {
		case j := <-b.jobs:
			j.handler(j.ctx, j.env)
		case <-b.done:
			return
		}
	}
}

// Publish sends the envelope to every subscriber of the channel.
func (b *Redis) Publish(ctx context.Context, channel string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// redisSubscription wraps a live *redis.PubSub.
type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Unsubscribe() error {
	return s.ps.Close()
}

// Subscribe registers a handler for a channel. The subscription is confirmed
// with the server before Subscribe returns, so a Publish issued afterwards
// is guaranteed to be observed.
func (b *Redis) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	b.readerWG.Add(1)
	go func() {
		defer b.readerWG.Done()
		for msg := range ps.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warnw("dropping malformed envelope", "channel", channel, "error", err)
				continue
			}
			select {
			case b.jobs <- job{ctx: ctx, handler: h, env: env}:
			case <-b.done:
				return
			}
		}
	}()

	return &redisSubscription{ps: ps}, nil
}

// Close stops the dispatch workers. Subscriptions should be unsubscribed
// first; any still open stop delivering once their reader drains.
func (b *Redis) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.workerWG.Wait()
	})
	return nil
}
