// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package evacuation coordinates draining players off a node: it flips the
// entry to EVACUATING, sends the directed evacuation request, and settles
// the outcome (response, duplicate, or deadline expiry).
package evacuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haroldDOTsh/fulcrum/pkg/bus"
	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/registry"
)

// StatusSetter is the slice of a registry the coordinator needs.
type StatusSetter interface {
	SetStatus(id string, to registry.Status) error
}

// Outcome classifies how an evacuation settled, for telemetry.
type Outcome string

const (
	// OutcomeSucceeded means the backend drained and reported success.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the backend reported failure; the entry stays
	// EVACUATING for the operator to decide.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimeout means no response arrived inside the deadline.
	OutcomeTimeout Outcome = "timeout"
)

// OutcomeListener observes settled evacuations.
type OutcomeListener interface {
	OnEvacuationSettled(kind registry.Kind, id string, outcome Outcome)
}

// pending is an in-flight evacuation request.
type pending struct {
	kind      registry.Kind
	nonce     string
	reason    string
	startedAt time.Time
}

// Coordinator tracks in-flight evacuations for both registries. The same
// deadline applies to proxies and backends; the directed bus request is
// only sent for backends (proxies drain through their own edge mechanics).
type Coordinator struct {
	clk      clock.Clock
	b        bus.Bus
	senderID string
	deadline time.Duration

	targets map[registry.Kind]StatusSetter

	mu        sync.Mutex
	pending   map[string]*pending // entry ID -> in-flight request
	listeners []OutcomeListener
}

// New creates a coordinator. The bus may be nil in tests; requests are then
// tracked without being sent.
func New(clk clock.Clock, b bus.Bus, senderID string, deadline time.Duration) *Coordinator {
	return &Coordinator{
		clk:      clk,
		b:        b,
		senderID: senderID,
		deadline: deadline,
		targets:  make(map[registry.Kind]StatusSetter),
		pending:  make(map[string]*pending),
	}
}

// SetTarget wires the registry for a kind. Call before use.
func (c *Coordinator) SetTarget(kind registry.Kind, s StatusSetter) {
	c.targets[kind] = s
}

// AddListener registers an outcome listener. Wire before use.
func (c *Coordinator) AddListener(l OutcomeListener) {
	c.listeners = append(c.listeners, l)
}

// Evacuate asks the node to vacate its players. The entry moves to
// EVACUATING first; if that transition is illegal nothing is sent.
func (c *Coordinator) Evacuate(ctx context.Context, kind registry.Kind, id, reason string) error {
	target, ok := c.targets[kind]
	if !ok {
		return errors.NewInternalError(fmt.Sprintf("no evacuation target for kind %s", kind), nil)
	}

	c.mu.Lock()
	if _, inFlight := c.pending[id]; inFlight {
		c.mu.Unlock()
		return errors.NewInvariantError(fmt.Sprintf("evacuation of %s already in flight", id), nil)
	}
	c.mu.Unlock()

	if err := target.SetStatus(id, registry.StatusEvacuating); err != nil {
		return err
	}

	p := &pending{
		kind:      kind,
		nonce:     uuid.NewString(),
		reason:    reason,
		startedAt: c.clk.Now(),
	}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	logger.Infow("evacuation requested", "kind", kind, "id", id, "reason", reason, "nonce", p.nonce)

	if kind == registry.KindBackend && c.b != nil {
		env, err := bus.NewEnvelope(bus.TypeEvacuation, c.senderID, bus.EvacuationRequest{
			ID:     id,
			Reason: reason,
			Nonce:  p.nonce,
		})
		if err != nil {
			return err
		}
		if err := c.b.Publish(ctx, bus.ChannelEvacuation, env); err != nil {
			return err
		}
	}
	return nil
}

// HandleResponse settles an in-flight evacuation. Duplicate or unknown
// responses (stale nonce, already settled) are ignored.
func (c *Coordinator) HandleResponse(resp bus.EvacuationResponse) {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	if !ok || p.nonce != resp.Nonce {
		c.mu.Unlock()
		logger.Debugw("ignoring stale evacuation response", "id", resp.ID, "nonce", resp.Nonce)
		return
	}
	delete(c.pending, resp.ID)
	listeners := c.listeners
	c.mu.Unlock()

	if !resp.Succeeded {
		// Leave the entry EVACUATING: the operator decides what happens
		// to a node that could not drain.
		logger.Warnw("evacuation failed",
			"id", resp.ID, "evacuated", resp.Evacuated, "failed", resp.Failed, "message", resp.Message)
		for _, l := range listeners {
			l.OnEvacuationSettled(p.kind, resp.ID, OutcomeFailed)
		}
		return
	}

	logger.Infow("evacuation succeeded", "id", resp.ID, "evacuated", resp.Evacuated)
	if target, ok := c.targets[p.kind]; ok {
		if err := target.SetStatus(resp.ID, registry.StatusUnavailable); err != nil {
			logger.Errorw("settling evacuation", "id", resp.ID, "error", err)
		}
	}
	for _, l := range listeners {
		l.OnEvacuationSettled(p.kind, resp.ID, OutcomeSucceeded)
	}
}

// CheckDeadlines expires in-flight requests older than the deadline. The
// entry drops to UNAVAILABLE and the heartbeat monitor ages it from there.
func (c *Coordinator) CheckDeadlines(now time.Time) {
	c.mu.Lock()
	var expired []struct {
		id string
		p  *pending
	}
	for id, p := range c.pending {
		if now.Sub(p.startedAt) > c.deadline {
			expired = append(expired, struct {
				id string
				p  *pending
			}{id, p})
			delete(c.pending, id)
		}
	}
	listeners := c.listeners
	c.mu.Unlock()

	for _, e := range expired {
		logger.Warnw("evacuation deadline expired", "id", e.id, "reason", e.p.reason)
		if target, ok := c.targets[e.p.kind]; ok {
			if err := target.SetStatus(e.id, registry.StatusUnavailable); err != nil {
				logger.Errorw("expiring evacuation", "id", e.id, "error", err)
			}
		}
		for _, l := range listeners {
			l.OnEvacuationSettled(e.p.kind, e.id, OutcomeTimeout)
		}
	}
}

// Pending reports whether an evacuation is in flight for the entry.
func (c *Coordinator) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}
