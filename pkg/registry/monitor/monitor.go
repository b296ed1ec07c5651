// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor drives liveness aging: a single periodic tick applies the
// timeout policy to every registry and then checks evacuation deadlines.
package monitor

import (
	"sync"
	"time"

	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
	"github.com/haroldDOTsh/fulcrum/pkg/registry"
)

// Target is anything the monitor ages. Registries apply transitions under
// their own locks; the monitor never mutates entries directly.
type Target interface {
	AgeEntries(now time.Time, p registry.Policy)
}

// Deadliner is swept after the targets on every tick (the evacuation
// coordinator's deadline check).
type Deadliner interface {
	CheckDeadlines(now time.Time)
}

// Monitor owns the periodic sweep.
type Monitor struct {
	clk    clock.Clock
	tick   time.Duration
	policy registry.Policy

	targets    []Target
	deadliners []Deadliner
	afterSweep []func()

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a monitor. Targets are swept in registration order on every
// tick, so no entry starves.
func New(clk clock.Clock, tick time.Duration, policy registry.Policy) *Monitor {
	return &Monitor{
		clk:    clk,
		tick:   tick,
		policy: policy,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Watch adds a registry to the sweep.
func (m *Monitor) Watch(t Target) {
	m.targets = append(m.targets, t)
}

// WatchDeadlines adds a deadline checker to the sweep.
func (m *Monitor) WatchDeadlines(d Deadliner) {
	m.deadliners = append(m.deadliners, d)
}

// AfterSweep registers a hook that runs at the end of every sweep (gauge
// refresh, console invalidation).
func (m *Monitor) AfterSweep(fn func()) {
	m.afterSweep = append(m.afterSweep, fn)
}

// Start launches the ticker goroutine. Call after all Watch registrations.
func (m *Monitor) Start() {
	m.started = true
	go m.run()
}

func (m *Monitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	logger.Debugw("heartbeat monitor started",
		"tick", m.tick,
		"softTimeout", m.policy.SoftTimeout,
		"hardTimeout", m.policy.HardTimeout,
		"recycleWindow", m.policy.RecycleWindow)

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Sweep runs one aging pass. Exposed so tests (and the shutdown path) can
// drive the monitor against a synthetic clock.
func (m *Monitor) Sweep() {
	now := m.clk.Now()
	for _, t := range m.targets {
		t.AgeEntries(now, m.policy)
	}
	for _, d := range m.deadliners {
		d.CheckDeadlines(now)
	}
	for _, fn := range m.afterSweep {
		fn()
	}
}

// Stop halts the ticker. The tick in flight, if any, completes first.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.started {
			<-m.done
		}
	})
}
