// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
)

func newTestBus(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedis(client, WithWorkers(2))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func waitFor(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	ctx := context.Background()

	got := make(chan Envelope, 1)
	sub, err := b.Subscribe(ctx, ChannelServerHeartbeat, func(_ context.Context, env Envelope) {
		got <- env
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	env, err := NewEnvelope(TypeServerHeartbeat, "backend-0", ServerHeartbeat{ID: "backend-0", TPS: 19.9})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, ChannelServerHeartbeat, env))

	received := waitFor(t, got)
	assert.Equal(t, TypeServerHeartbeat, received.Type)
	assert.Equal(t, "backend-0", received.SenderID)

	var hb ServerHeartbeat
	require.NoError(t, received.Decode(&hb))
	assert.Equal(t, "backend-0", hb.ID)
	assert.InDelta(t, 19.9, hb.TPS, 0.001)
}

func TestSubscribeIsolatedPerChannel(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	sub, err := b.Subscribe(ctx, ChannelProxyHeartbeat, func(_ context.Context, env Envelope) {
		mu.Lock()
		seen = append(seen, env.Type)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	got := make(chan Envelope, 1)
	sub2, err := b.Subscribe(ctx, ChannelServerHeartbeat, func(_ context.Context, env Envelope) {
		got <- env
	})
	require.NoError(t, err)
	defer func() { _ = sub2.Unsubscribe() }()

	env, err := NewEnvelope(TypeServerHeartbeat, "backend-1", ServerHeartbeat{ID: "backend-1"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, ChannelServerHeartbeat, env))

	waitFor(t, got)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seen, "proxy channel handler must not see server heartbeats")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	ctx := context.Background()

	got := make(chan Envelope, 4)
	sub, err := b.Subscribe(ctx, ChannelProxyAnnounce, func(_ context.Context, env Envelope) {
		got <- env
	})
	require.NoError(t, err)

	env, err := NewEnvelope(TypeProxyAnnounce, "proxy-0", ProxyHeartbeat{ID: "proxy-0"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, ChannelProxyAnnounce, env))
	waitFor(t, got)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, b.Publish(ctx, ChannelProxyAnnounce, env))

	select {
	case <-got:
		t.Fatal("received envelope after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRequestReply(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	ctx := context.Background()

	// Core-side responder: answer registration requests on the temp-ID
	// reply channel.
	sub, err := b.Subscribe(ctx, ChannelRegister, func(ctx context.Context, env Envelope) {
		var req RegisterRequest
		require.NoError(t, env.Decode(&req))
		reply, err := NewEnvelope(TypeRegistrationResponse, "fulcrum-core", RegistrationResponse{
			Success:    true,
			AssignedID: "backend-0",
		})
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, RegistrationResponseChannel(req.TempID), reply))
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	env, err := NewEnvelope(TypeRegister, "temp-a", RegisterRequest{TempID: "temp-a", Role: "game"})
	require.NoError(t, err)

	reply, err := Request(ctx, b, ChannelRegister, RegistrationResponseChannel("temp-a"), env, 5*time.Second)
	require.NoError(t, err)

	var resp RegistrationResponse
	require.NoError(t, reply.Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "backend-0", resp.AssignedID)
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	ctx := context.Background()

	env, err := NewEnvelope(TypeRegister, "temp-b", RegisterRequest{TempID: "temp-b"})
	require.NoError(t, err)

	_, err = Request(ctx, b, ChannelRegister, RegistrationResponseChannel("temp-b"), env, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
}

func TestMalformedEnvelopeDropped(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedis(client)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	got := make(chan Envelope, 1)
	sub, err := b.Subscribe(ctx, ChannelServerRemove, func(_ context.Context, env Envelope) {
		got <- env
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	// Raw garbage straight through the client, bypassing envelope marshaling.
	require.NoError(t, client.Publish(ctx, ChannelServerRemove, "{not json").Err())

	env, err := NewEnvelope(TypeServerRemove, "backend-2", RemoveRequest{ID: "backend-2"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, ChannelServerRemove, env))

	received := waitFor(t, got)
	assert.Equal(t, "backend-2", received.SenderID, "well-formed envelope should still arrive after garbage")
}
