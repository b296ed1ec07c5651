// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks the fleet inventory: proxy gateways and backend
// servers, keyed by their permanent IDs, with liveness-driven status
// transitions. Registries exclusively own their entry maps; consumers get
// copies through snapshots.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/haroldDOTsh/fulcrum/pkg/errors"
)

// Kind distinguishes the two registries in shared interfaces.
type Kind string

const (
	// KindProxy identifies proxy gateway entries.
	KindProxy Kind = "proxy"
	// KindBackend identifies backend server entries.
	KindBackend Kind = "backend"
)

// Status is the liveness state of a registry entry.
type Status int

const (
	// StatusAvailable means the node heartbeats on time and takes traffic.
	StatusAvailable Status = iota
	// StatusEvacuating means a drain is in flight; heartbeat aging is paused.
	StatusEvacuating
	// StatusUnavailable means the soft timeout elapsed without a heartbeat.
	StatusUnavailable
	// StatusDead means the hard timeout elapsed; the ID is in its recycle
	// cool-down and the entry is dropped when the window ends.
	StatusDead
)

var statusNames = map[Status]string{
	StatusAvailable:   "AVAILABLE",
	StatusEvacuating:  "EVACUATING",
	StatusUnavailable: "UNAVAILABLE",
	StatusDead:        "DEAD",
}

// String returns the canonical upper-case name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalJSON renders the status as its canonical name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a canonical status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return errors.NewInvalidArgumentError(fmt.Sprintf("unknown status %q", name), nil)
}

// IsActive reports whether the entry still counts toward the fleet
// (everything but DEAD).
func (s Status) IsActive() bool {
	return s != StatusDead
}

// legalTransitions is the explicit state machine. The monitor drives the
// timeout edges; the evacuation coordinator and operators drive the rest.
var legalTransitions = map[Status][]Status{
	StatusAvailable:   {StatusEvacuating, StatusUnavailable},
	StatusUnavailable: {StatusAvailable, StatusDead},
	StatusEvacuating:  {StatusAvailable, StatusUnavailable},
	StatusDead:        {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
