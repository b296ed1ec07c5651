// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor wires the registry core together: it owns every
// component, subscribes the bus channels, dispatches incoming envelopes to
// the owning component, and runs the scheduled sweeps.
package supervisor

import (
	"context"
	"strings"

	"github.com/haroldDOTsh/fulcrum/pkg/bus"
	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/config"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/netconfig"
	"github.com/haroldDOTsh/fulcrum/pkg/registry"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/evacuation"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/ident"
	"github.com/haroldDOTsh/fulcrum/pkg/registry/monitor"
	"github.com/haroldDOTsh/fulcrum/pkg/telemetry"
)

// SenderID identifies the core on the bus.
const SenderID = "fulcrum-core"

// Supervisor owns all core components.
type Supervisor struct {
	cfg config.Config
	b   bus.Bus
	clk clock.Clock

	Proxies     *registry.ProxyRegistry
	Backends    *registry.BackendRegistry
	Monitor     *monitor.Monitor
	Evacuations *evacuation.Coordinator
	NetConfig   *netconfig.Manager
	Metrics     *telemetry.Metrics

	subs []bus.Subscription
}

// New constructs and wires the components. The store is owned by the
// caller and must outlive the supervisor.
func New(cfg config.Config, b bus.Bus, clk clock.Clock, store netconfig.Store) *Supervisor {
	alloc := ident.NewAllocator()
	s := &Supervisor{
		cfg: cfg,
		b:   b,
		clk: clk,
	}

	s.Metrics = telemetry.New()
	s.Proxies = registry.NewProxyRegistry(clk, alloc, cfg.Timing.DedupeWindow)
	s.Backends = registry.NewBackendRegistry(clk, alloc, cfg.Timing.DedupeWindow)
	s.NetConfig = netconfig.NewManager(store, b, clk, SenderID)

	s.Evacuations = evacuation.New(clk, b, SenderID, cfg.Timing.EvacuationDeadline)
	s.Evacuations.SetTarget(registry.KindProxy, s.Proxies)
	s.Evacuations.SetTarget(registry.KindBackend, s.Backends)
	s.Evacuations.AddListener(s.Metrics)

	// Listener order matters: metrics first, then the bus broadcaster, so
	// a broadcast observer reading /metrics sees the transition counted.
	s.Proxies.AddListener(s.Metrics)
	s.Backends.AddListener(s.Metrics)
	broadcaster := registry.StatusListenerFunc(s.broadcastStatusChange)
	s.Proxies.AddListener(broadcaster)
	s.Backends.AddListener(broadcaster)

	s.Monitor = monitor.New(clk, cfg.Timing.HeartbeatTick, registry.Policy{
		SoftTimeout:   cfg.Timing.SoftTimeout,
		HardTimeout:   cfg.Timing.HardTimeout,
		RecycleWindow: cfg.Timing.RecycleWindow,
	})
	s.Monitor.Watch(s.Proxies)
	s.Monitor.Watch(s.Backends)
	s.Monitor.WatchDeadlines(s.Evacuations)
	s.Monitor.AfterSweep(func() {
		s.Metrics.SetEntryCounts(registry.KindProxy, s.Proxies.Counts())
		s.Metrics.SetEntryCounts(registry.KindBackend, s.Backends.Counts())
	})

	return s
}

// Start seeds the config cache, subscribes every inbound channel, starts
// the heartbeat monitor, and asks the fleet to re-identify (the registry
// holds no persistent inventory, so a restart begins empty).
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.NetConfig.Seed(ctx); err != nil {
		return err
	}

	for channel, h := range map[string]bus.Handler{
		bus.ChannelRegister:           s.handleRegister,
		bus.ChannelServerHeartbeat:    s.handleServerHeartbeat,
		bus.ChannelProxyHeartbeat:     s.handleProxyHeartbeat,
		bus.ChannelServerRemove:       s.handleRemove,
		bus.ChannelEvacuationResponse: s.handleEvacuationResponse,
		bus.ChannelConfigRequest:      s.handleConfigRequest,
	} {
		sub, err := s.b.Subscribe(ctx, channel, h)
		if err != nil {
			s.unsubscribeAll()
			return err
		}
		s.subs = append(s.subs, sub)
	}

	s.Monitor.Start()

	env, err := bus.NewEnvelope(bus.TypeReregistration, SenderID, struct{}{})
	if err != nil {
		return err
	}
	if err := s.b.Publish(ctx, bus.ChannelReregistration, env); err != nil {
		return err
	}
	logger.Info("registry core started; fleet asked to re-identify")
	return nil
}

// Stop unsubscribes and halts the monitor. The bus and store are closed by
// the caller that opened them.
func (s *Supervisor) Stop() {
	s.unsubscribeAll()
	s.Monitor.Stop()
	logger.Info("registry core stopped")
}

func (s *Supervisor) unsubscribeAll() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warnw("unsubscribing", "error", err)
		}
	}
	s.subs = nil
}

func (s *Supervisor) broadcastStatusChange(kind registry.Kind, id string, from, to registry.Status) {
	env, err := bus.NewEnvelope(bus.TypeStatusChanged, SenderID, bus.StatusChanged{
		Kind: string(kind),
		ID:   id,
		From: from.String(),
		To:   to.String(),
	})
	if err != nil {
		logger.Errorw("building status broadcast", "error", err)
		return
	}
	if err := s.b.Publish(context.Background(), bus.ChannelStatusChanged, env); err != nil {
		logger.Warnw("broadcasting status change", "id", id, "error", err)
	}
}

// handleRegister serves registry:register. The role selector routes the
// request: "proxy" registers a gateway, anything else a backend.
func (s *Supervisor) handleRegister(ctx context.Context, env bus.Envelope) {
	var req bus.RegisterRequest
	if err := env.Decode(&req); err != nil {
		logger.Warnw("malformed register payload", "sender", env.SenderID, "error", err)
		return
	}
	if req.TempID == "" {
		logger.Warnw("register request without tempId", "sender", env.SenderID)
		return
	}

	var result registry.RegisterResult
	var err error
	if strings.EqualFold(req.Role, "proxy") {
		result, err = s.Proxies.Register(registry.ProxyRegistration{
			TempID:  req.TempID,
			Address: req.Address,
			Port:    req.Port,
		})
	} else {
		serverType := registry.ServerType(strings.ToUpper(req.Type))
		if req.Type == "" {
			serverType = registry.TypeMini
		}
		result, err = s.Backends.Register(registry.BackendRegistration{
			TempID:   req.TempID,
			Address:  req.Address,
			Port:     req.Port,
			Type:     serverType,
			Role:     req.Role,
			Capacity: req.Capacity,
		})
	}

	resp := bus.RegistrationResponse{Success: err == nil}
	switch {
	case err != nil:
		resp.Message = err.Error()
		logger.Warnw("registration rejected", "tempId", req.TempID, "error", err)
	case result.Warning != "":
		resp.AssignedID = result.ID
		resp.Message = result.Warning
	default:
		resp.AssignedID = result.ID
		resp.Message = "registered"
	}

	out, err := bus.NewEnvelope(bus.TypeRegistrationResponse, SenderID, resp)
	if err != nil {
		logger.Errorw("building registration response", "error", err)
		return
	}
	if err := s.b.Publish(ctx, bus.RegistrationResponseChannel(req.TempID), out); err != nil {
		logger.Errorw("sending registration response", "tempId", req.TempID, "error", err)
	}
}

func (s *Supervisor) handleServerHeartbeat(_ context.Context, env bus.Envelope) {
	var hb bus.ServerHeartbeat
	if err := env.Decode(&hb); err != nil {
		logger.Warnw("malformed server heartbeat", "sender", env.SenderID, "error", err)
		return
	}
	err := s.Backends.Heartbeat(hb.ID, registry.BackendStats{
		TPS:          hb.TPS,
		Players:      hb.PlayerCount,
		UptimeMillis: hb.Uptime,
		Pools:        hb.AvailablePools,
	})
	if err != nil {
		// Unknown IDs are expected after a core restart, until the node
		// answers the re-registration request.
		logger.Debugw("heartbeat for unknown backend", "id", hb.ID)
	}
}

func (s *Supervisor) handleProxyHeartbeat(_ context.Context, env bus.Envelope) {
	var hb bus.ProxyHeartbeat
	if err := env.Decode(&hb); err != nil {
		logger.Warnw("malformed proxy heartbeat", "sender", env.SenderID, "error", err)
		return
	}
	if err := s.Proxies.Heartbeat(hb.ID, registry.ProxyStats{Players: hb.CurrentPlayers, HardCap: hb.HardCap}); err != nil {
		logger.Debugw("heartbeat for unknown proxy", "id", hb.ID)
	}
}

func (s *Supervisor) handleRemove(_ context.Context, env bus.Envelope) {
	var req bus.RemoveRequest
	if err := env.Decode(&req); err != nil {
		logger.Warnw("malformed remove request", "sender", env.SenderID, "error", err)
		return
	}
	var err error
	if strings.HasPrefix(req.ID, string(ident.RoleProxy)+"-") {
		err = s.Proxies.RemoveImmediate(req.ID)
	} else {
		err = s.Backends.RemoveImmediate(req.ID)
	}
	if err != nil {
		logger.Warnw("removing entry", "id", req.ID, "error", err)
		return
	}
	logger.Infow("entry removed on request", "id", req.ID, "reason", req.Reason)
}

func (s *Supervisor) handleEvacuationResponse(_ context.Context, env bus.Envelope) {
	var resp bus.EvacuationResponse
	if err := env.Decode(&resp); err != nil {
		logger.Warnw("malformed evacuation response", "sender", env.SenderID, "error", err)
		return
	}
	s.Evacuations.HandleResponse(resp)
}

func (s *Supervisor) handleConfigRequest(ctx context.Context, env bus.Envelope) {
	var req netconfig.ConfigRequest
	if err := env.Decode(&req); err != nil {
		logger.Warnw("malformed config request", "sender", env.SenderID, "error", err)
		return
	}
	resp := s.NetConfig.HandleRequest(ctx, req)
	out, err := bus.NewEnvelope(bus.TypeConfigResponse, SenderID, resp)
	if err != nil {
		logger.Errorw("building config response", "error", err)
		return
	}
	if err := s.b.Publish(ctx, bus.ChannelConfigResponse, out); err != nil {
		logger.Errorw("sending config response", "requestId", req.RequestID, "error", err)
	}
}
