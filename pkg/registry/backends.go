// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/ident"
)

// BackendRegistration is the input to BackendRegistry.Register.
type BackendRegistration struct {
	TempID  string
	Address string
	Port    int
	Type    ServerType
	// Role is the node's free-form ENVIRONMENT selector (e.g. "game").
	Role string
	// Capacity optionally overrides the hard cap derived from Type.
	Capacity int
}

// BackendRegistry tracks backend servers by permanent ID and temp ID,
// including their type, role, capacity, pool membership, and TPS.
type BackendRegistry struct {
	mu    sync.Mutex
	clk   clock.Clock
	alloc *ident.Allocator

	dedupeWindow time.Duration

	entries    map[string]*BackendEntry
	order      []string
	byTempID   map[string]string
	byHostPort map[string]string

	listeners []StatusListener
}

// NewBackendRegistry creates an empty backend registry.
func NewBackendRegistry(clk clock.Clock, alloc *ident.Allocator, dedupeWindow time.Duration) *BackendRegistry {
	return &BackendRegistry{
		clk:          clk,
		alloc:        alloc,
		dedupeWindow: dedupeWindow,
		entries:      make(map[string]*BackendEntry),
		byTempID:     make(map[string]string),
		byHostPort:   make(map[string]string),
	}
}

// AddListener registers a status-change listener. Wire listeners before
// the bus goes live.
func (r *BackendRegistry) AddListener(l StatusListener) {
	r.listeners = append(r.listeners, l)
}

// caps derives the soft and hard player caps from the server type and an
// optional node-supplied capacity override. A supplied capacity becomes the
// hard cap and derives the soft cap (capacity - 5, floored at 1).
func caps(t ServerType, capacity int) (soft, hard int) {
	soft, hard = t.DefaultCaps()
	if capacity > 0 {
		hard = capacity
		soft = capacity - 5
		if soft < 1 {
			soft = 1
		}
	}
	return soft, hard
}

// Register assigns a permanent ID to a backend, with the same dedupe and
// reconnect semantics as the proxy registry.
func (r *BackendRegistry) Register(reg BackendRegistration) (RegisterResult, error) {
	if reg.Type != TypeMini && reg.Type != TypeMega {
		return RegisterResult{}, errors.NewInvalidArgumentError(
			fmt.Sprintf("unknown server type %q", reg.Type), nil)
	}

	r.mu.Lock()
	now := r.clk.Now()
	hp := hostPortKey(reg.Address, reg.Port)

	if id, ok := r.byHostPort[hp]; ok {
		e := r.entries[id]
		if e.Status.IsActive() && now.Sub(e.RegisteredAt) <= r.dedupeWindow {
			r.mu.Unlock()
			return RegisterResult{ID: id, Reused: true}, nil
		}
	}

	if id, ok := r.byTempID[reg.TempID]; ok {
		e := r.entries[id]
		if e.Status.IsActive() {
			var warning string
			if e.Address != reg.Address || e.Port != reg.Port {
				warning = fmt.Sprintf("backend %s reconnected from %s:%d but is registered at %s:%d; keeping the original address",
					id, reg.Address, reg.Port, e.Address, e.Port)
				logger.Warn(warning)
			}
			var transitions []transition
			if e.Status == StatusUnavailable {
				e.Status = StatusAvailable
				e.LastHeartbeat = now
				transitions = append(transitions, transition{id: id, from: StatusUnavailable, to: StatusAvailable})
			}
			listeners := r.listeners
			r.mu.Unlock()
			notify(listeners, KindBackend, transitions)
			return RegisterResult{ID: id, Reused: true, Warning: warning}, nil
		}
	}

	if id, ok := r.byHostPort[hp]; ok && r.entries[id].Status.IsActive() {
		r.mu.Unlock()
		return RegisterResult{}, errors.NewInvariantError(
			fmt.Sprintf("%s is already registered as %s", hp, id), nil)
	}

	soft, hard := caps(reg.Type, reg.Capacity)
	if soft > hard {
		r.mu.Unlock()
		return RegisterResult{}, errors.NewInvariantError(
			fmt.Sprintf("softCap %d exceeds hardCap %d", soft, hard), nil)
	}

	n, err := r.alloc.Allocate(ident.RoleBackend)
	if err != nil {
		r.mu.Unlock()
		return RegisterResult{}, err
	}
	id := ident.FormatID(ident.RoleBackend, n)
	e := &BackendEntry{
		ID:            id,
		TempID:        reg.TempID,
		Address:       reg.Address,
		Port:          reg.Port,
		Type:          reg.Type,
		Role:          reg.Role,
		SoftCap:       soft,
		HardCap:       hard,
		Status:        StatusAvailable,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	r.byTempID[reg.TempID] = id
	r.byHostPort[hp] = id
	r.mu.Unlock()

	logger.Infow("backend registered",
		"id", id, "tempId", reg.TempID, "type", reg.Type, "role", reg.Role,
		"address", reg.Address, "port", reg.Port, "softCap", soft, "hardCap", hard)
	return RegisterResult{ID: id}, nil
}

// Heartbeat refreshes liveness and the stats slice of the entry.
func (r *BackendRegistry) Heartbeat(id string, stats BackendStats) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("unknown backend %s", id), nil)
	}

	var transitions []transition
	switch e.Status {
	case StatusAvailable:
		e.LastHeartbeat = r.clk.Now()
	case StatusUnavailable:
		e.LastHeartbeat = r.clk.Now()
		e.Status = StatusAvailable
		transitions = append(transitions, transition{id: id, from: StatusUnavailable, to: StatusAvailable})
	case StatusEvacuating, StatusDead:
		r.mu.Unlock()
		return nil
	}
	e.TPS = stats.TPS
	e.Players = stats.Players
	e.UptimeMillis = stats.UptimeMillis
	if stats.Pools != nil {
		pools := append([]string(nil), stats.Pools...)
		sort.Strings(pools)
		e.Pools = pools
	}
	listeners := r.listeners
	r.mu.Unlock()
	notify(listeners, KindBackend, transitions)
	return nil
}

// SetStatus applies an explicit transition, enforcing the state machine.
func (r *BackendRegistry) SetStatus(id string, to Status) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("unknown backend %s", id), nil)
	}
	if e.Status == to {
		r.mu.Unlock()
		return nil
	}
	if !CanTransition(e.Status, to) {
		from := e.Status
		r.mu.Unlock()
		return errors.NewInvariantError(
			fmt.Sprintf("backend %s cannot transition %s -> %s", id, from, to), nil)
	}
	from := e.Status
	r.applyLocked(e, to)
	listeners := r.listeners
	r.mu.Unlock()
	notify(listeners, KindBackend, []transition{{id: id, from: from, to: to}})
	return nil
}

func (r *BackendRegistry) applyLocked(e *BackendEntry, to Status) {
	now := r.clk.Now()
	e.Status = to
	if to == StatusDead {
		e.deadAt = now
		if n, err := ident.ParseID(ident.RoleBackend, e.ID); err == nil {
			r.alloc.Release(ident.RoleBackend, n, false, now)
		}
	}
}

// RemoveImmediate drops the entry and frees its ID at once. Idempotent.
func (r *BackendRegistry) RemoveImmediate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	r.dropLocked(e, true)
	logger.Infow("backend removed", "id", id)
	return nil
}

// ForceRelease is the operator override for a stuck reserved ID.
func (r *BackendRegistry) ForceRelease(id string) error {
	n, err := ident.ParseID(ident.RoleBackend, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		r.dropLocked(e, true)
	}
	r.alloc.ForceRelease(ident.RoleBackend, n)
	return nil
}

func (r *BackendRegistry) dropLocked(e *BackendEntry, releaseNow bool) {
	delete(r.entries, e.ID)
	for i, id := range r.order {
		if id == e.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if cur, ok := r.byTempID[e.TempID]; ok && cur == e.ID {
		delete(r.byTempID, e.TempID)
	}
	hp := hostPortKey(e.Address, e.Port)
	if cur, ok := r.byHostPort[hp]; ok && cur == e.ID {
		delete(r.byHostPort, hp)
	}
	if releaseNow {
		if n, err := ident.ParseID(ident.RoleBackend, e.ID); err == nil {
			r.alloc.Release(ident.RoleBackend, n, true, r.clk.Now())
		}
	}
}

// AgeEntries applies the timeout policy to every entry, in insertion order,
// at most one transition per entry per sweep.
func (r *BackendRegistry) AgeEntries(now time.Time, p Policy) {
	r.mu.Lock()
	var transitions []transition
	for _, id := range append([]string(nil), r.order...) {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		delta := now.Sub(e.LastHeartbeat)
		switch e.Status {
		case StatusAvailable:
			if delta > p.SoftTimeout {
				e.Status = StatusUnavailable
				transitions = append(transitions, transition{id: id, from: StatusAvailable, to: StatusUnavailable})
			}
		case StatusUnavailable:
			if delta > p.HardTimeout {
				r.applyLocked(e, StatusDead)
				transitions = append(transitions, transition{id: id, from: StatusUnavailable, to: StatusDead})
			}
		case StatusEvacuating:
			// The evacuation coordinator owns this state.
		case StatusDead:
			if now.Sub(e.deadAt) > p.RecycleWindow {
				if n, err := ident.ParseID(ident.RoleBackend, e.ID); err == nil {
					r.alloc.ForceRelease(ident.RoleBackend, n)
				}
				r.dropLocked(e, false)
				logger.Debugw("backend entry recycled", "id", id)
			}
		}
	}
	listeners := r.listeners
	r.mu.Unlock()
	notify(listeners, KindBackend, transitions)
}

// Get returns a copy of the entry, if present.
func (r *BackendRegistry) Get(id string) (BackendEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return BackendEntry{}, false
	}
	return copyBackend(e), true
}

// Snapshot returns entry copies in insertion order.
func (r *BackendRegistry) Snapshot() []BackendEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BackendEntry, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, copyBackend(e))
		}
	}
	return out
}

// Counts returns the number of entries per status.
func (r *BackendRegistry) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int, 4)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts
}

// copyBackend deep-copies the pools slice so snapshot consumers cannot
// alias registry-owned state.
func copyBackend(e *BackendEntry) BackendEntry {
	out := *e
	out.Pools = append([]string(nil), e.Pools...)
	return out
}
