// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the registry core so that liveness and
// recycle-window behavior is testable against a synthetic clock.
package clock

import (
	"sync"
	"time"

	"oss.indeed.com/go/libtime"
)

// Clock is the narrow time interface the registry core depends on.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// system delegates to the libtime system clock.
type system struct {
	clk libtime.Clock
}

// System returns a Clock backed by the wall clock.
func System() Clock {
	return &system{clk: libtime.SystemClock()}
}

func (s *system) Now() time.Time {
	return s.clk.Now()
}

func (s *system) Since(t time.Time) time.Duration {
	return s.clk.Since(t)
}

// Fake is a manually driven Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake pinned to the given instant.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake's current instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Since returns the elapsed fake time since t.
func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to the given instant.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
