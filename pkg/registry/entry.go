// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"strconv"
	"time"
)

// ServerType classifies a backend by its heap size tier.
type ServerType string

const (
	// TypeMini is a small backend (≤ 8 GB heap), default caps 10/15.
	TypeMini ServerType = "MINI"
	// TypeMega is a large backend (> 8 GB heap), default caps 60/70.
	TypeMega ServerType = "MEGA"
)

// DefaultCaps returns the soft and hard player caps for the type.
func (t ServerType) DefaultCaps() (soft, hard int) {
	if t == TypeMega {
		return 60, 70
	}
	return 10, 15
}

// ProxyEntry is a proxy gateway's registry record. Address and port are
// immutable after creation.
type ProxyEntry struct {
	ID            string    `json:"id"`
	TempID        string    `json:"tempId"`
	Address       string    `json:"address"`
	Port          int       `json:"port"`
	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	RegisteredAt  time.Time `json:"registeredAt"`
	Players       int       `json:"currentPlayers"`
	HardCap       int       `json:"hardCap"`

	// deadAt stamps the DEAD transition; the entry is dropped and its ID
	// reaped once the recycle window elapses.
	deadAt time.Time
}

// BackendEntry is a backend server's registry record.
type BackendEntry struct {
	ID            string     `json:"id"`
	TempID        string     `json:"tempId"`
	Address       string     `json:"address"`
	Port          int        `json:"port"`
	Type          ServerType `json:"type"`
	Role          string     `json:"role"`
	SoftCap       int        `json:"softCap"`
	HardCap       int        `json:"hardCap"`
	Players       int        `json:"currentPlayers"`
	TPS           float64    `json:"tps"`
	UptimeMillis  int64      `json:"uptimeMillis"`
	Pools         []string   `json:"availablePools"`
	Status        Status     `json:"status"`
	LastHeartbeat time.Time  `json:"lastHeartbeat"`
	RegisteredAt  time.Time  `json:"registeredAt"`

	deadAt time.Time
}

// BackendStats is the mutable slice of a backend heartbeat.
type BackendStats struct {
	TPS          float64
	Players      int
	UptimeMillis int64
	Pools        []string
}

// ProxyStats is the mutable slice of a proxy heartbeat.
type ProxyStats struct {
	Players int
	HardCap int
}

// Policy bundles the timeout knobs the heartbeat monitor applies.
type Policy struct {
	SoftTimeout   time.Duration
	HardTimeout   time.Duration
	RecycleWindow time.Duration
}

// hostPortKey builds the (address, port) uniqueness key.
func hostPortKey(address string, port int) string {
	return address + ":" + strconv.Itoa(port)
}
