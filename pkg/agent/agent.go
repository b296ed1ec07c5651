// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent is the node-side client of the registry: backends and
// proxies embed it to register (with retries), emit heartbeats, answer
// evacuation requests, and re-identify when the core restarts.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/haroldDOTsh/fulcrum/pkg/bus"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
)

// Options configures an agent.
type Options struct {
	// Role is the node's ENVIRONMENT selector ("proxy" for gateways,
	// anything else for backends).
	Role string
	// Type is the backend tier (MINI/MEGA); ignored for proxies.
	Type string
	// Address and Port are the node's reachable endpoint.
	Address string
	Port    int
	// Capacity optionally overrides the hard cap.
	Capacity int

	// RetryInterval spaces registration attempts; Retries bounds them.
	RetryInterval time.Duration
	Retries       int
	// RequestTimeout bounds each registration round-trip.
	RequestTimeout time.Duration
}

// StatsFunc supplies the current heartbeat stats.
type StatsFunc func() bus.ServerHeartbeat

// EvacuateFunc drains the node's players; the agent reports the outcome.
// Player transfer mechanics belong to the node, not the registry.
type EvacuateFunc func(ctx context.Context, reason string) (evacuated, failed int, err error)

// Agent is one node's registry client.
type Agent struct {
	b    bus.Bus
	opts Options

	tempID string

	mu sync.Mutex
	id string
}

// New creates an agent with a fresh temp ID.
func New(b bus.Bus, opts Options) *Agent {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 15 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 5
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Agent{
		b:      b,
		opts:   opts,
		tempID: "temp-" + uuid.NewString(),
	}
}

// TempID returns the pre-registration placeholder identifier.
func (a *Agent) TempID() string {
	return a.tempID
}

// ID returns the assigned permanent ID, empty before registration.
func (a *Agent) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// Register obtains a permanent ID, retrying on timeout or rejection at a
// constant interval up to the configured attempt count.
func (a *Agent) Register(ctx context.Context) (string, error) {
	operation := func() (string, error) {
		id, err := a.registerOnce(ctx)
		if err != nil {
			logger.Warnw("registration attempt failed", "tempId", a.tempID, "error", err)
			return "", err
		}
		return id, nil
	}

	id, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(a.opts.RetryInterval)),
		backoff.WithMaxTries(uint(a.opts.Retries)),
	)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.id = id
	a.mu.Unlock()
	logger.Infow("registered", "id", id, "tempId", a.tempID)
	return id, nil
}

func (a *Agent) registerOnce(ctx context.Context) (string, error) {
	env, err := bus.NewEnvelope(bus.TypeRegister, a.tempID, bus.RegisterRequest{
		TempID:   a.tempID,
		Role:     a.opts.Role,
		Type:     a.opts.Type,
		Address:  a.opts.Address,
		Port:     a.opts.Port,
		Capacity: a.opts.Capacity,
	})
	if err != nil {
		return "", err
	}

	reply, err := bus.Request(ctx, a.b, bus.ChannelRegister,
		bus.RegistrationResponseChannel(a.tempID), env, a.opts.RequestTimeout)
	if err != nil {
		return "", err
	}

	var resp bus.RegistrationResponse
	if err := reply.Decode(&resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", errors.NewInvalidArgumentError(fmt.Sprintf("registration rejected: %s", resp.Message), nil)
	}
	if resp.Message != "" && resp.Message != "registered" {
		logger.Warnw("registration warning", "id", resp.AssignedID, "message", resp.Message)
	}
	return resp.AssignedID, nil
}

// RunHeartbeats emits heartbeats at the given interval until ctx ends.
// Proxies publish on proxy:heartbeat, backends on server:heartbeat.
func (a *Agent) RunHeartbeats(ctx context.Context, interval time.Duration, stats StatsFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.sendHeartbeat(ctx, stats); err != nil {
				logger.Warnw("sending heartbeat", "id", a.ID(), "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context, stats StatsFunc) error {
	id := a.ID()
	if id == "" {
		return nil // not registered yet
	}
	s := stats()
	s.ID = id

	if a.opts.Role == "proxy" {
		env, err := bus.NewEnvelope(bus.TypeProxyHeartbeat, id, bus.ProxyHeartbeat{
			ID:             id,
			CurrentPlayers: s.PlayerCount,
			HardCap:        s.MaxCapacity,
		})
		if err != nil {
			return err
		}
		return a.b.Publish(ctx, bus.ChannelProxyHeartbeat, env)
	}

	env, err := bus.NewEnvelope(bus.TypeServerHeartbeat, id, s)
	if err != nil {
		return err
	}
	return a.b.Publish(ctx, bus.ChannelServerHeartbeat, env)
}

// ListenReregistration re-registers whenever the core asks the fleet to
// re-identify (core restart). Returns the subscription for teardown.
func (a *Agent) ListenReregistration(ctx context.Context) (bus.Subscription, error) {
	return a.b.Subscribe(ctx, bus.ChannelReregistration, func(ctx context.Context, _ bus.Envelope) {
		logger.Info("core requested re-registration")
		if _, err := a.Register(ctx); err != nil {
			logger.Errorw("re-registration failed", "tempId", a.tempID, "error", err)
		}
	})
}

// ListenEvacuations answers directed evacuation requests with the outcome
// of fn. Requests for other nodes are ignored.
func (a *Agent) ListenEvacuations(ctx context.Context, fn EvacuateFunc) (bus.Subscription, error) {
	return a.b.Subscribe(ctx, bus.ChannelEvacuation, func(ctx context.Context, env bus.Envelope) {
		var req bus.EvacuationRequest
		if err := env.Decode(&req); err != nil {
			logger.Warnw("malformed evacuation request", "error", err)
			return
		}
		if req.ID != a.ID() {
			return
		}

		resp := bus.EvacuationResponse{ID: req.ID, Nonce: req.Nonce}
		evacuated, failed, err := fn(ctx, req.Reason)
		resp.Evacuated = evacuated
		resp.Failed = failed
		if err != nil {
			resp.Succeeded = false
			resp.Message = err.Error()
		} else {
			resp.Succeeded = failed == 0
		}

		out, err := bus.NewEnvelope(bus.TypeEvacuationResponse, a.ID(), resp)
		if err != nil {
			logger.Errorw("building evacuation response", "error", err)
			return
		}
		if err := a.b.Publish(ctx, bus.ChannelEvacuationResponse, out); err != nil {
			logger.Errorw("sending evacuation response", "error", err)
		}
	})
}
