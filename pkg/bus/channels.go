// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package bus

// Channel names of the registry wire protocol.
const (
	// ChannelRegister carries registration requests from nodes to the core.
	ChannelRegister = "registry:register"
	// ChannelServerHeartbeat carries backend liveness reports.
	ChannelServerHeartbeat = "server:heartbeat"
	// ChannelProxyHeartbeat carries proxy liveness reports.
	ChannelProxyHeartbeat = "proxy:heartbeat"
	// ChannelProxyAnnounce lets backends discover new proxies.
	ChannelProxyAnnounce = "proxy:announce"
	// ChannelServerAnnouncement lets routers and peers discover backends.
	ChannelServerAnnouncement = "server.announcement"
	// ChannelEvacuation carries evacuation requests from the core to backends.
	ChannelEvacuation = "server:evacuation"
	// ChannelEvacuationResponse carries evacuation outcomes back to the core.
	ChannelEvacuationResponse = "server:evacuation:response"
	// ChannelServerRemove carries graceful-shutdown removals.
	ChannelServerRemove = "registry:server:remove"
	// ChannelReregistration asks every node to re-identify after a core restart.
	ChannelReregistration = "registry:reregistration:request"
	// ChannelConfigRequest carries network-config fetches from nodes.
	ChannelConfigRequest = "registry:network:config:request"
	// ChannelConfigResponse carries network-config replies to nodes.
	ChannelConfigResponse = "registry:network:config:response"
	// ChannelConfigUpdated is broadcast after a profile becomes active.
	ChannelConfigUpdated = "registry:network:config:updated"
	// ChannelStatusChanged is broadcast on every registry status transition,
	// so observers can track entry state without polling snapshots.
	ChannelStatusChanged = "registry:status:changed"
)

// RegistrationResponseChannel is the directed reply channel a registering
// node listens on, keyed by its temp ID.
func RegistrationResponseChannel(tempID string) string {
	return "server:" + tempID + ":registration:response"
}

// Message types carried in Envelope.Type.
const (
	TypeRegister             = "register"
	TypeRegistrationResponse = "registration.response"
	TypeServerHeartbeat      = "server.heartbeat"
	TypeProxyHeartbeat       = "proxy.heartbeat"
	TypeProxyAnnounce        = "proxy.announce"
	TypeServerAnnouncement   = "server.announcement"
	TypeEvacuation           = "server.evacuation"
	TypeEvacuationResponse   = "evacuation.response"
	TypeServerRemove         = "server.remove"
	TypeReregistration       = "reregistration.request"
	TypeConfigRequest        = "network.config.request"
	TypeConfigResponse       = "network.config.response"
	TypeConfigUpdated        = "network.config.updated"
	TypeStatusChanged        = "status.changed"
)
