// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package netconfig

import (
	"context"
	_ "embed"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/haroldDOTsh/fulcrum/pkg/bus"
	"github.com/haroldDOTsh/fulcrum/pkg/clock"
	"github.com/haroldDOTsh/fulcrum/pkg/errors"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
)

//go:embed default_profile.json
var defaultProfileJSON []byte

// Publisher is the bus slice the manager needs for broadcasts.
type Publisher interface {
	Publish(ctx context.Context, channel string, env bus.Envelope) error
}

// Manager owns the active network profile. Writes (ApplyProfile, Refresh,
// Seed) serialize on one mutex; reads are lock-free against an immutable
// snapshot published by swap.
type Manager struct {
	store    Store
	pub      Publisher
	clk      clock.Clock
	senderID string

	mu     sync.Mutex // serializes writes
	active atomic.Pointer[NetworkProfile]
}

// NewManager creates a manager. pub may be nil for offline use (tests,
// CLI inspection); broadcasts are then skipped.
func NewManager(store Store, pub Publisher, clk clock.Clock, senderID string) *Manager {
	return &Manager{store: store, pub: pub, clk: clk, senderID: senderID}
}

// Seed ensures the catalog is usable on first run: when no profiles exist,
// the bundled default is inserted and made active. When profiles exist but
// none is active, nothing is changed (the operator chooses).
func (m *Manager) Seed(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		var p NetworkProfile
		if err := json.Unmarshal(defaultProfileJSON, &p); err != nil {
			return errors.NewInternalError("decode bundled default profile", err)
		}
		p.UpdatedAt = m.clk.Now()
		if err := m.store.Put(ctx, &p); err != nil {
			return err
		}
		if err := m.store.SetActiveRef(ctx, ActiveRef{ProfileID: p.ProfileID, Tag: p.Tag, UpdatedAt: p.UpdatedAt}); err != nil {
			return err
		}
		m.active.Store(p.Copy())
		logger.Infow("seeded default network profile", "profileId", p.ProfileID)
		return nil
	}

	// Catalog exists: load the active pointer into the cache if it
	// resolves and validates.
	return m.refreshLocked(ctx)
}

// ListProfiles returns catalog summaries with the active profile marked.
func (m *Manager) ListProfiles(ctx context.Context) ([]Summary, error) {
	profiles, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	activeID := ""
	if p := m.active.Load(); p != nil {
		activeID = p.ProfileID
	}
	out := make([]Summary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, Summary{
			ProfileID: p.ProfileID,
			Tag:       p.Tag,
			UpdatedAt: p.UpdatedAt,
			Active:    p.ProfileID == activeID,
		})
	}
	return out, nil
}

// ApplyProfile loads, validates, and activates a profile, then broadcasts
// the change. The broadcast happens strictly after the cache swap, so any
// node reacting to it reads the new profile.
func (m *Manager) ApplyProfile(ctx context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.Get(ctx, profileID)
	if err != nil {
		return err
	}
	if res := Validate(p); !res.OK() {
		return errors.NewValidationError(res.String(), nil)
	}

	ref := ActiveRef{ProfileID: p.ProfileID, Tag: p.Tag, UpdatedAt: m.clk.Now()}
	if err := m.store.SetActiveRef(ctx, ref); err != nil {
		return err
	}
	m.active.Store(p.Copy())
	logger.Infow("network profile applied", "profileId", p.ProfileID, "tag", p.Tag)

	m.broadcastUpdated(ctx, p, ref)
	return nil
}

// Refresh re-reads the catalog. When the active profile still exists and
// validates, the cache is re-swapped; a transient store failure keeps the
// previously cached profile in effect.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	ref, err := m.store.ActiveRef(ctx)
	if errors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		logger.Warnw("refresh: keeping cached profile", "error", err)
		return err
	}

	p, err := m.store.Get(ctx, ref.ProfileID)
	if err != nil {
		logger.Warnw("refresh: active profile unreadable, keeping cache", "profileId", ref.ProfileID, "error", err)
		return err
	}
	if res := Validate(p); !res.OK() {
		logger.Warnw("refresh: active profile invalid, keeping cache", "profileId", ref.ProfileID, "errors", res.String())
		return errors.NewValidationError(res.String(), nil)
	}
	m.active.Store(p.Copy())
	return nil
}

// ActiveProfile returns a copy of the cached active profile, or false when
// none is available.
func (m *Manager) ActiveProfile() (*NetworkProfile, bool) {
	p := m.active.Load()
	if p == nil {
		return nil, false
	}
	return p.Copy(), true
}

func (m *Manager) broadcastUpdated(ctx context.Context, p *NetworkProfile, ref ActiveRef) {
	if m.pub == nil {
		return
	}
	env, err := bus.NewEnvelope(bus.TypeConfigUpdated, m.senderID, bus.ConfigUpdated{
		ProfileID: p.ProfileID,
		Tag:       p.Tag,
		UpdatedAt: ref.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		logger.Errorw("building config.updated broadcast", "error", err)
		return
	}
	if err := m.pub.Publish(ctx, bus.ChannelConfigUpdated, env); err != nil {
		logger.Errorw("broadcasting config.updated", "error", err)
	}
}

// ConfigRequest is a node's network-config fetch.
type ConfigRequest struct {
	RequestID string `json:"requestId"`
	ProfileID string `json:"profileId,omitempty"`
	Refresh   bool   `json:"refresh,omitempty"`
}

// ConfigResponse answers a ConfigRequest.
type ConfigResponse struct {
	RequestID string          `json:"requestId"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Profile   *NetworkProfile `json:"profile,omitempty"`
}

// HandleRequest serves one config request: the active profile by default,
// a specific catalog profile when profileId is set, with an optional
// refresh first.
func (m *Manager) HandleRequest(ctx context.Context, req ConfigRequest) ConfigResponse {
	if req.Refresh {
		if err := m.Refresh(ctx); err != nil {
			logger.Warnw("config request refresh failed", "requestId", req.RequestID, "error", err)
		}
	}

	if req.ProfileID != "" {
		p, err := m.store.Get(ctx, req.ProfileID)
		if err != nil {
			return ConfigResponse{RequestID: req.RequestID, OK: false, Error: err.Error()}
		}
		return ConfigResponse{RequestID: req.RequestID, OK: true, Profile: p}
	}

	p, ok := m.ActiveProfile()
	if !ok {
		return ConfigResponse{
			RequestID: req.RequestID,
			OK:        false,
			Error:     "no active network profile",
		}
	}
	return ConfigResponse{RequestID: req.RequestID, OK: true, Profile: p}
}
