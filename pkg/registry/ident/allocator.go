// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package ident allocates the role-scoped dense integer identifiers the
// registries hand out. Released IDs pass through a reserved cool-down set
// before they become allocatable again, so a just-dead ID is never reused
// by a different instance inside the recycle window.
package ident

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
)

// Role scopes an ID space. Each role has its own dense integer sequence.
type Role string

const (
	// RoleProxy is the proxy gateway ID space (proxy-0, proxy-1, ...).
	RoleProxy Role = "proxy"
	// RoleBackend is the backend server ID space (backend-0, backend-1, ...).
	RoleBackend Role = "backend"
)

// FormatID renders a role-scoped integer as its short token, e.g. proxy-0.
func FormatID(role Role, n int) string {
	return fmt.Sprintf("%s-%d", role, n)
}

// ParseID inverts FormatID. The role prefix must match exactly.
func ParseID(role Role, id string) (int, error) {
	prefix := string(role) + "-"
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0, errors.NewInvalidArgumentError(fmt.Sprintf("id %q does not have role prefix %q", id, prefix), nil)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, errors.NewInvalidArgumentError(fmt.Sprintf("id %q has a malformed sequence number", id), err)
	}
	return n, nil
}

// roleSpace is the per-role allocation state.
type roleSpace struct {
	live     map[int]struct{}
	reserved map[int]time.Time // id -> release timestamp
}

// Allocator hands out the lowest free non-negative integer per role.
type Allocator struct {
	mu     sync.Mutex
	spaces map[Role]*roleSpace
}

// NewAllocator creates an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{spaces: make(map[Role]*roleSpace)}
}

func (a *Allocator) space(role Role) *roleSpace {
	s, ok := a.spaces[role]
	if !ok {
		s = &roleSpace{
			live:     make(map[int]struct{}),
			reserved: make(map[int]time.Time),
		}
		a.spaces[role] = s
	}
	return s
}

// Allocate returns the lowest non-negative integer not currently live or
// reserved for the role, and inserts it into the live set.
func (a *Allocator) Allocate(role Role) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.space(role)
	// Dense scan from zero: the used prefix is small (fleet-sized), and the
	// lowest hole is exactly what operators expect to see reused.
	for n := 0; ; n++ {
		if _, ok := s.live[n]; ok {
			continue
		}
		if _, ok := s.reserved[n]; ok {
			continue
		}
		if err := s.insertLive(role, n); err != nil {
			return 0, err
		}
		return n, nil
	}
}

// insertLive adds n to the live set, checking for collisions first.
func (s *roleSpace) insertLive(role Role, n int) error {
	if _, ok := s.live[n]; ok {
		return errors.NewInvariantError(fmt.Sprintf("id %s already live", FormatID(role, n)), nil)
	}
	if _, ok := s.reserved[n]; ok {
		return errors.NewInvariantError(fmt.Sprintf("id %s still reserved", FormatID(role, n)), nil)
	}
	s.live[n] = struct{}{}
	return nil
}

// Release removes the ID from the live set. With immediate set the ID is
// freed outright; otherwise it moves to the reserved set stamped with now,
// where it stays until Reap promotes it after the recycle window.
func (a *Allocator) Release(role Role, id int, immediate bool, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.space(role)
	delete(s.live, id)
	if immediate {
		delete(s.reserved, id)
		return
	}
	s.reserved[id] = now
}

// Reap promotes reserved IDs whose release timestamp is older than the
// recycle window back to free, returning the promoted IDs.
func (a *Allocator) Reap(role Role, now time.Time, recycleWindow time.Duration) []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.space(role)
	var freed []int
	for id, releasedAt := range s.reserved {
		if now.Sub(releasedAt) > recycleWindow {
			delete(s.reserved, id)
			freed = append(freed, id)
		}
	}
	return freed
}

// ForceRelease removes the ID from both sets. Operator override for a
// stuck reserved ID.
func (a *Allocator) ForceRelease(role Role, id int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.space(role)
	delete(s.live, id)
	delete(s.reserved, id)
}

// IsLive reports whether the ID is currently allocated.
func (a *Allocator) IsLive(role Role, id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.space(role).live[id]
	return ok
}

// IsReserved reports whether the ID is in its recycle cool-down.
func (a *Allocator) IsReserved(role Role, id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.space(role).reserved[id]
	return ok
}
