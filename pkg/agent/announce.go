// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"sync"

	"github.com/haroldDOTsh/fulcrum/pkg/bus"
	"github.com/haroldDOTsh/fulcrum/pkg/logger"
)

// Announce broadcasts this node's presence: proxies on proxy:announce,
// backends on server.announcement. Peers use these to build their own
// routing caches; the core does not consume them.
func (a *Agent) Announce(ctx context.Context, env string) error {
	id := a.ID()
	if id == "" {
		return nil
	}

	if a.opts.Role == "proxy" {
		out, err := bus.NewEnvelope(bus.TypeProxyAnnounce, id, bus.ProxyHeartbeat{
			ID:      id,
			HardCap: a.opts.Capacity,
		})
		if err != nil {
			return err
		}
		return a.b.Publish(ctx, bus.ChannelProxyAnnounce, out)
	}

	out, err := bus.NewEnvelope(bus.TypeServerAnnouncement, id, bus.ServerAnnouncement{
		ID:       id,
		Type:     a.opts.Type,
		Env:      env,
		Role:     a.opts.Role,
		Capacity: a.opts.Capacity,
		Address:  a.opts.Address,
		Port:     a.opts.Port,
	})
	if err != nil {
		return err
	}
	return a.b.Publish(ctx, bus.ChannelServerAnnouncement, out)
}

// AnnouncementCache collects peer backend announcements. Evacuating
// backends pick their transfer targets from it.
type AnnouncementCache struct {
	mu      sync.Mutex
	entries map[string]bus.ServerAnnouncement
}

// NewAnnouncementCache creates an empty cache.
func NewAnnouncementCache() *AnnouncementCache {
	return &AnnouncementCache{entries: make(map[string]bus.ServerAnnouncement)}
}

// Listen subscribes the cache to server.announcement.
func (c *AnnouncementCache) Listen(ctx context.Context, b bus.Bus) (bus.Subscription, error) {
	return b.Subscribe(ctx, bus.ChannelServerAnnouncement, func(_ context.Context, env bus.Envelope) {
		var ann bus.ServerAnnouncement
		if err := env.Decode(&ann); err != nil {
			logger.Warnw("malformed server announcement", "error", err)
			return
		}
		c.mu.Lock()
		c.entries[ann.ID] = ann
		c.mu.Unlock()
	})
}

// Forget drops one entry (a peer announced its shutdown or went dead).
func (c *AnnouncementCache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Snapshot returns the known peers.
func (c *AnnouncementCache) Snapshot() []bus.ServerAnnouncement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bus.ServerAnnouncement, 0, len(c.entries))
	for _, ann := range c.entries {
		out = append(out, ann)
	}
	return out
}
