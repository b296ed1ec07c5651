// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/ident"
)

func newTestBackendRegistry(t *testing.T) (*BackendRegistry, *clock.Fake, *recorder) {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	r := NewBackendRegistry(clk, ident.NewAllocator(), testDedupeWindow)
	rec := &recorder{}
	r.AddListener(rec)
	return r, clk, rec
}

func TestBackendRegisterDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reg      BackendRegistration
		wantSoft int
		wantHard int
	}{
		{
			name:     "MINI defaults",
			reg:      BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"},
			wantSoft: 10,
			wantHard: 15,
		},
		{
			name:     "MEGA defaults",
			reg:      BackendRegistration{TempID: "temp-b", Address: "10.0.0.2", Port: 25566, Type: TypeMega, Role: "lobby"},
			wantSoft: 60,
			wantHard: 70,
		},
		{
			name:     "MINI with explicit capacity",
			reg:      BackendRegistration{TempID: "temp-c", Address: "10.0.0.3", Port: 25566, Type: TypeMini, Role: "game", Capacity: 15},
			wantSoft: 10,
			wantHard: 15,
		},
		{
			name:     "capacity override derives soft cap",
			reg:      BackendRegistration{TempID: "temp-d", Address: "10.0.0.4", Port: 25566, Type: TypeMega, Role: "game", Capacity: 40},
			wantSoft: 35,
			wantHard: 40,
		},
		{
			name:     "tiny capacity floors soft cap at one",
			reg:      BackendRegistration{TempID: "temp-e", Address: "10.0.0.5", Port: 25566, Type: TypeMini, Role: "game", Capacity: 4},
			wantSoft: 1,
			wantHard: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _, _ := newTestBackendRegistry(t)

			res, err := r.Register(tt.reg)
			require.NoError(t, err)

			e, ok := r.Get(res.ID)
			require.True(t, ok)
			assert.Equal(t, tt.wantSoft, e.SoftCap)
			assert.Equal(t, tt.wantHard, e.HardCap)
			assert.LessOrEqual(t, e.SoftCap, e.HardCap)
			assert.Equal(t, tt.reg.Role, e.Role)
		})
	}
}

func TestBackendRegisterRejectsUnknownType(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestBackendRegistry(t)

	_, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: "GIGA"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestBackendRegisterScenarioFresh(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestBackendRegistry(t)

	res, err := r.Register(BackendRegistration{
		TempID:   "temp-a",
		Address:  "10.0.0.1",
		Port:     25566,
		Type:     TypeMini,
		Role:     "game",
		Capacity: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, "backend-0", res.ID)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "backend-0", snap[0].ID)
	assert.Equal(t, StatusAvailable, snap[0].Status)
	assert.Equal(t, 10, snap[0].SoftCap)
	assert.Equal(t, 15, snap[0].HardCap)
}

func TestBackendRegisterBurstDedup(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestBackendRegistry(t)

	first, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	second, err := r.Register(BackendRegistration{TempID: "temp-b", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Reused)
	assert.Len(t, r.Snapshot(), 1)
}

func TestBackendHeartbeatUpdatesStats(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestBackendRegistry(t)

	res, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	require.NoError(t, r.Heartbeat(res.ID, BackendStats{
		TPS:          19.8,
		Players:      7,
		UptimeMillis: 123456,
		Pools:        []string{"duels", "bedwars"},
	}))

	e, ok := r.Get(res.ID)
	require.True(t, ok)
	assert.InDelta(t, 19.8, e.TPS, 0.001)
	assert.Equal(t, 7, e.Players)
	assert.Equal(t, int64(123456), e.UptimeMillis)
	assert.Equal(t, []string{"bedwars", "duels"}, e.Pools, "pools are kept sorted")
	assert.Equal(t, clk.Now(), e.LastHeartbeat)
}

func TestBackendSnapshotPoolsAreCopies(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestBackendRegistry(t)

	res, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)
	require.NoError(t, r.Heartbeat(res.ID, BackendStats{Pools: []string{"duels"}}))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Pools[0] = "mutated"

	e, _ := r.Get(res.ID)
	assert.Equal(t, []string{"duels"}, e.Pools)
}

func TestBackendRemoveImmediateIsIdempotent(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestBackendRegistry(t)

	res, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)

	require.NoError(t, r.RemoveImmediate(res.ID))
	require.NoError(t, r.RemoveImmediate(res.ID))

	next, err := r.Register(BackendRegistration{TempID: "temp-b", Address: "10.0.0.2", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)
	assert.Equal(t, "backend-0", next.ID)
}

func TestBackendDeadLineageDoesNotAnswerTempID(t *testing.T) {
	t.Parallel()
	r, clk, _ := newTestBackendRegistry(t)
	policy := Policy{SoftTimeout: 15 * time.Second, HardTimeout: 60 * time.Second, RecycleWindow: 5 * time.Minute}

	first, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)

	clk.Advance(16 * time.Second)
	r.AgeEntries(clk.Now(), policy)
	clk.Advance(50 * time.Second)
	r.AgeEntries(clk.Now(), policy)

	e, ok := r.Get(first.ID)
	require.True(t, ok)
	require.Equal(t, StatusDead, e.Status)

	// The same temp ID registering again starts a new lineage with a new ID;
	// backend-0 is still inside its recycle window.
	again, err := r.Register(BackendRegistration{TempID: "temp-a", Address: "10.0.0.1", Port: 25566, Type: TypeMini, Role: "game"})
	require.NoError(t, err)
	assert.Equal(t, "backend-1", again.ID)
	assert.False(t, again.Reused)
}
