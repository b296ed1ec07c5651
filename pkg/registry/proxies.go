// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/ident"
)

// RegisterResult is the outcome of a registration.
type RegisterResult struct {
	// ID is the permanent identifier assigned or re-confirmed.
	ID string
	// Reused is true when an existing entry answered the registration.
	Reused bool
	// Warning carries a non-fatal condition (e.g. a reconnect with a
	// changed address) for the registration response message.
	Warning string
}

// ProxyRegistration is the input to ProxyRegistry.Register.
type ProxyRegistration struct {
	TempID  string
	Address string
	Port    int
}

// ProxyRegistry tracks proxy gateways by permanent ID, temp ID, and
// (address, port). It exclusively owns its entry map; the heartbeat monitor
// mutates entries only through AgeEntries.
type ProxyRegistry struct {
	mu    sync.Mutex
	clk   clock.Clock
	alloc *ident.Allocator

	// dedupeWindow collapses burst re-registrations from the same
	// (address, port) onto the entry created first.
	dedupeWindow time.Duration

	entries    map[string]*ProxyEntry
	order      []string // insertion order, for fair aging and stable snapshots
	byTempID   map[string]string
	byHostPort map[string]string

	listeners []StatusListener
}

// NewProxyRegistry creates an empty proxy registry.
func NewProxyRegistry(clk clock.Clock, alloc *ident.Allocator, dedupeWindow time.Duration) *ProxyRegistry {
	return &ProxyRegistry{
		clk:          clk,
		alloc:        alloc,
		dedupeWindow: dedupeWindow,
		entries:      make(map[string]*ProxyEntry),
		byTempID:     make(map[string]string),
		byHostPort:   make(map[string]string),
	}
}

// AddListener registers a status-change listener. Not safe to call
// concurrently with operations; wire listeners before the bus goes live.
func (r *ProxyRegistry) AddListener(l StatusListener) {
	r.listeners = append(r.listeners, l)
}

// Register assigns a permanent ID to a proxy, deduplicating burst
// re-registrations and reactivating entries that reconnect by temp ID.
func (r *ProxyRegistry) Register(reg ProxyRegistration) (RegisterResult, error) {
	r.mu.Lock()
	now := r.clk.Now()
	hp := hostPortKey(reg.Address, reg.Port)

	// Burst dedupe: the same (address, port) re-registering shortly after
	// its first registration gets the same ID back.
	if id, ok := r.byHostPort[hp]; ok {
		e := r.entries[id]
		if e.Status.IsActive() && now.Sub(e.RegisteredAt) <= r.dedupeWindow {
			r.mu.Unlock()
			return RegisterResult{ID: id, Reused: true}, nil
		}
	}

	// Reconnect by temp ID.
	if id, ok := r.byTempID[reg.TempID]; ok {
		e := r.entries[id]
		if e.Status.IsActive() {
			var warning string
			if e.Address != reg.Address || e.Port != reg.Port {
				warning = fmt.Sprintf("proxy %s reconnected from %s:%d but is registered at %s:%d; keeping the original address",
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
			notify(listeners, KindProxy, transitions)
			return RegisterResult{ID: id, Reused: true, Warning: warning}, nil
		}
		// A DEAD entry does not answer reconnects; the lineage resets
		// with a fresh ID below.
	}

	// The (address, port) tuple must be unique among non-DEAD entries.
	if id, ok := r.byHostPort[hp]; ok && r.entries[id].Status.IsActive() {
		r.mu.Unlock()
		return RegisterResult{}, errors.NewInvariantError(
			fmt.Sprintf("%s is already registered as %s", hp, id), nil)
	}

	n, err := r.alloc.Allocate(ident.RoleProxy)
	if err != nil {
		r.mu.Unlock()
		return RegisterResult{}, err
	}
	id := ident.FormatID(ident.RoleProxy, n)
	e := &ProxyEntry{
		ID:            id,
		TempID:        reg.TempID,
		Address:       reg.Address,
		Port:          reg.Port,
		Status:        StatusAvailable,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	r.byTempID[reg.TempID] = id
	r.byHostPort[hp] = id
	r.mu.Unlock()

	logger.Infow("proxy registered", "id", id, "tempId", reg.TempID, "address", reg.Address, "port", reg.Port)
	return RegisterResult{ID: id}, nil
}

// Heartbeat refreshes liveness and stats. An UNAVAILABLE proxy is promoted
// back to AVAILABLE; EVACUATING and DEAD entries are left untouched.
func (r *ProxyRegistry) Heartbeat(id string, stats ProxyStats) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("unknown proxy %s", id), nil)
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
		// Evacuation owns EVACUATING; DEAD lineage is closed.
		r.mu.Unlock()
		return nil
	}
	e.Players = stats.Players
	if stats.HardCap > 0 {
		e.HardCap = stats.HardCap
	}
	listeners := r.listeners
	r.mu.Unlock()
	notify(listeners, KindProxy, transitions)
	return nil
}

// SetStatus applies an explicit transition, enforcing the state machine.
func (r *ProxyRegistry) SetStatus(id string, to Status) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("unknown proxy %s", id), nil)
	}
	if e.Status == to {
		r.mu.Unlock()
		return nil
	}
	if !CanTransition(e.Status, to) {
		from := e.Status
		r.mu.Unlock()
		return errors.NewInvariantError(
			fmt.Sprintf("proxy %s cannot transition %s -> %s", id, from, to), nil)
	}
	from := e.Status
	r.applyLocked(e, to)
	listeners := r.listeners
	r.mu.Unlock()
	notify(listeners, KindProxy, []transition{{id: id, from: from, to: to}})
	return nil
}

// applyLocked applies a validated transition. DEAD moves the ID into its
// recycle cool-down.
func (r *ProxyRegistry) applyLocked(e *ProxyEntry, to Status) {
	now := r.clk.Now()
	e.Status = to
	if to == StatusDead {
		e.deadAt = now
		if n, err := ident.ParseID(ident.RoleProxy, e.ID); err == nil {
			r.alloc.Release(ident.RoleProxy, n, false, now)
		}
	}
}

// RemoveImmediate drops the entry and frees its ID at once (graceful
// shutdown). A second call for the same ID is a no-op.
func (r *ProxyRegistry) RemoveImmediate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	r.dropLocked(e, true)
	logger.Infow("proxy removed", "id", id)
	return nil
}

// ForceRelease is the operator override for a stuck reserved ID. It works
// whether or not an entry still exists for the ID.
func (r *ProxyRegistry) ForceRelease(id string) error {
	n, err := ident.ParseID(ident.RoleProxy, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		r.dropLocked(e, true)
	}
	r.alloc.ForceRelease(ident.RoleProxy, n)
	return nil
}

// dropLocked removes an entry and its index mappings. Index entries are
// only removed when they still point at this entry, so a newer lineage
// reusing the same temp ID or address is not disturbed.
func (r *ProxyRegistry) dropLocked(e *ProxyEntry, releaseNow bool) {
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
		if n, err := ident.ParseID(ident.RoleProxy, e.ID); err == nil {
			r.alloc.Release(ident.RoleProxy, n, true, r.clk.Now())
		}
	}
}

// AgeEntries applies the timeout policy to every entry, in insertion order.
// At most one transition is applied per entry per sweep, so observers see
// monotonic state-machine progress.
func (r *ProxyRegistry) AgeEntries(now time.Time, p Policy) {
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
				if n, err := ident.ParseID(ident.RoleProxy, e.ID); err == nil {
					r.alloc.ForceRelease(ident.RoleProxy, n)
				}
				r.dropLocked(e, false)
				logger.Debugw("proxy entry recycled", "id", id)
			}
		}
	}
	listeners := r.listeners
	r.mu.Unlock()
	notify(listeners, KindProxy, transitions)
}

// Get returns a copy of the entry, if present.
func (r *ProxyRegistry) Get(id string) (ProxyEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ProxyEntry{}, false
	}
	return *e, true
}

// Snapshot returns entry copies in insertion order.
func (r *ProxyRegistry) Snapshot() []ProxyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProxyEntry, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Counts returns the number of entries per status.
func (r *ProxyRegistry) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int, 4)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts
}
