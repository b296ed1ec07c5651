// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/ident"
)

var testEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const testDedupeWindow = 30 * time.Second

// recorder captures status transitions for assertions.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnStatusChanged(kind Kind, id string, from, to Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(kind)+":"+id+":"+from.String()+"->"+to.String())
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestProxyRegistry(t *testing.T) (*ProxyRegistry, *clock.Fake, *recorder) {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	r := NewProxyRegistry(clk, ident.NewAllocator(), testDedupeWindow)
	rec := &recorder{}
	r.AddListener(rec)
	return r, clk, rec
}

func TestProxyRegisterAssignsDenseIDs(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestProxyRegistry(t)

	res, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)
	assert.Equal(t, "proxy-0", res.ID)
	assert.False(t, res.Reused)

	res, err = r.Register(ProxyRegistration{TempID: "temp-b", Address: "10.0.0.2", Port: 25577})
	require.NoError(t, err)
	assert.Equal(t, "proxy-1", res.ID)

	e, ok := r.Get("proxy-0")
	require.True(t, ok)
	assert.Equal(t, StatusAvailable, e.Status)
	assert.Equal(t, "temp-a", e.TempID)
	assert.Equal(t, testEpoch, e.RegisteredAt)
}

func TestProxyRegisterBurstDedup(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestProxyRegistry(t)

	first, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	second, err := r.Register(ProxyRegistration{TempID: "temp-b", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Reused)
	assert.Len(t, r.Snapshot(), 1, "burst dedupe must not allocate a second entry")
}

func TestProxyRegisterSameHostPortOutsideWindowIsInvariant(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestProxyRegistry(t)

	_, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	clk.Advance(testDedupeWindow + time.Second)
	_, err = r.Register(ProxyRegistration{TempID: "temp-b", Address: "10.0.0.1", Port: 25577})
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))
	assert.Len(t, r.Snapshot(), 1, "failed registration must leave state unchanged")
}

func TestProxyRegisterReconnectByTempID(t *testing.T) {
	t.Parallel()
	r, clk, rec := newTestProxyRegistry(t)

	first, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	// Outside the burst window, a live entry still answers its temp ID.
	clk.Advance(testDedupeWindow + time.Second)
	again, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.Reused)
	assert.Empty(t, again.Warning)

	// Demote, then reconnect: the entry reactivates.
	require.NoError(t, r.SetStatus(first.ID, StatusUnavailable))
	clk.Advance(time.Second)
	back, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)

	e, ok := r.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, StatusAvailable, e.Status)
	assert.Equal(t, clk.Now(), e.LastHeartbeat)
	assert.Contains(t, rec.all(), "proxy:proxy-0:UNAVAILABLE->AVAILABLE")
}

func TestProxyReconnectWithChangedAddressWarns(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestProxyRegistry(t)

	first, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(first.ID, StatusUnavailable))
	clk.Advance(testDedupeWindow + time.Second)

	back, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.9", Port: 25578})
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)
	assert.NotEmpty(t, back.Warning)

	// The original tuple is kept.
	e, ok := r.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", e.Address)
	assert.Equal(t, 25577, e.Port)
}

func TestProxyHeartbeatPromotesUnavailable(t *testing.T) {
	t.Parallel()
	r, clk, rec := newTestProxyRegistry(t)

	res, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(res.ID, StatusUnavailable))

	clk.Advance(2 * time.Second)
	require.NoError(t, r.Heartbeat(res.ID, ProxyStats{Players: 12, HardCap: 500}))

	e, ok := r.Get(res.ID)
	require.True(t, ok)
	assert.Equal(t, StatusAvailable, e.Status)
	assert.Equal(t, 12, e.Players)
	assert.Equal(t, 500, e.HardCap)
	assert.Equal(t, clk.Now(), e.LastHeartbeat)
	assert.Contains(t, rec.all(), "proxy:proxy-0:UNAVAILABLE->AVAILABLE")
}

func TestProxyHeartbeatIgnoresEvacuating(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestProxyRegistry(t)

	res, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(res.ID, StatusEvacuating))

	before, _ := r.Get(res.ID)
	clk.Advance(5 * time.Second)
	require.NoError(t, r.Heartbeat(res.ID, ProxyStats{Players: 3}))

	after, _ := r.Get(res.ID)
	assert.Equal(t, StatusEvacuating, after.Status)
	assert.Equal(t, before.LastHeartbeat, after.LastHeartbeat)
}

func TestProxyHeartbeatUnknownID(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestProxyRegistry(t)

	err := r.Heartbeat("proxy-9", ProxyStats{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestProxySetStatusRejectsIllegalTransitions(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestProxyRegistry(t)

	res, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	// AVAILABLE cannot jump straight to DEAD.
	err = r.SetStatus(res.ID, StatusDead)
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))

	e, _ := r.Get(res.ID)
	assert.Equal(t, StatusAvailable, e.Status, "failed transition must leave state unchanged")

	// Same-status set is a no-op.
	require.NoError(t, r.SetStatus(res.ID, StatusAvailable))
}

func TestProxyRemoveImmediateIsIdempotent(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestProxyRegistry(t)

	res, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	require.NoError(t, r.RemoveImmediate(res.ID))
	_, ok := r.Get(res.ID)
	assert.False(t, ok)

	// Second call is a no-op.
	require.NoError(t, r.RemoveImmediate(res.ID))

	// The ID is free again at once.
	next, err := r.Register(ProxyRegistration{TempID: "temp-b", Address: "10.0.0.2", Port: 25577})
	require.NoError(t, err)
	assert.Equal(t, "proxy-0", next.ID)
}

func TestProxyForceReleaseFreesReservedID(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestProxyRegistry(t)
	policy := Policy{SoftTimeout: 15 * time.Second, HardTimeout: 60 * time.Second, RecycleWindow: 5 * time.Minute}

	res, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	// Age the entry to DEAD: its ID is now reserved.
	clk.Advance(16 * time.Second)
	r.AgeEntries(clk.Now(), policy)
	clk.Advance(45 * time.Second)
	r.AgeEntries(clk.Now(), policy)
	e, ok := r.Get(res.ID)
	require.True(t, ok)
	require.Equal(t, StatusDead, e.Status)

	require.NoError(t, r.ForceRelease(res.ID))
	_, ok = r.Get(res.ID)
	assert.False(t, ok)

	next, err := r.Register(ProxyRegistration{TempID: "temp-b", Address: "10.0.0.2", Port: 25577})
	require.NoError(t, err)
	assert.Equal(t, "proxy-0", next.ID)
}

func TestProxySnapshotIsACopy(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestProxyRegistry(t)

	_, err := r.Register(ProxyRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25577})
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Status = StatusDead

	e, _ := r.Get("proxy-0")
	assert.Equal(t, StatusAvailable, e.Status)
}

func TestProxyCounts(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestProxyRegistry(t)

	for _, reg := range []ProxyRegistration{
		{TempID: "temp-a", Address: "10.0.0.1", Port: 25577},
		{TempID: "temp-b", Address: "10.0.0.2", Port: 25577},
		{TempID: "temp-c", Address: "10.0.0.3", Port: 25577},
	} {
		_, err := r.Register(reg)
		require.NoError(t, err)
	}
	require.NoError(t, r.SetStatus("proxy-1", StatusUnavailable))
	require.NoError(t, r.SetStatus("proxy-2", StatusEvacuating))

	counts := r.Counts()
	assert.Equal(t, 1, counts[StatusAvailable])
	assert.Equal(t, 1, counts[StatusUnavailable])
	assert.Equal(t, 1, counts[StatusEvacuating])
	assert.Equal(t, 0, counts[StatusDead])
}
