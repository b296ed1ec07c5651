// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldDOTsh/fulcrum/pkg/bus"
)

func TestBackendAnnounce(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	respondRegistrations(t, b, bus.RegistrationResponse{Success: true, AssignedID: "backend-0"})
	ctx := context.Background()

	got := make(chan bus.Envelope, 1)
	sub, err := b.Subscribe(ctx, bus.ChannelServerAnnouncement, func(_ context.Context, env bus.Envelope) {
		got <- env
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	a := New(b, Options{Role: "game", Type: "MINI", Address: "10.0.0.1", Port: 25566, Capacity: 15, RetryInterval: 5 * time.Millisecond})
	_, err = a.Register(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Announce(ctx, "production"))

	select {
	case env := <-got:
		var ann bus.ServerAnnouncement
		require.NoError(t, env.Decode(&ann))
		assert.Equal(t, "backend-0", ann.ID)
		assert.Equal(t, "production", ann.Env)
		assert.Equal(t, "game", ann.Role)
		assert.Equal(t, 15, ann.Capacity)
	case <-time.After(5 * time.Second):
		t.Fatal("no announcement published")
	}
}

func TestAnnounceBeforeRegistrationIsNoop(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	a := New(b, Options{Role: "game"})
	require.NoError(t, a.Announce(context.Background(), "production"))
}

func TestAnnouncementCache(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	ctx := context.Background()

	cache := NewAnnouncementCache()
	sub, err := cache.Listen(ctx, b)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	env, err := bus.NewEnvelope(bus.TypeServerAnnouncement, "backend-1", bus.ServerAnnouncement{
		ID: "backend-1", Type: "MINI", Role: "game", Address: "10.0.0.2", Port: 25566,
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, bus.ChannelServerAnnouncement, env))

	require.Eventually(t, func() bool {
		return len(cache.Snapshot()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	snap := cache.Snapshot()
	assert.Equal(t, "backend-1", snap[0].ID)

	cache.Forget("backend-1")
	assert.Empty(t, cache.Snapshot())
}
