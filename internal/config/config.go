// Package config holds the role, hub tuning and CLI configuration types.
package config

import (
	"fmt"
	"time"
)

// Role represents the device's position in the star (host or player).
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// ParseRole converts a CLI string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHost, RolePlayer:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q: must be 'host' or 'player'", s)
}

// TransportKind selects how a player's byte stream reaches the host once
// signaling is complete.
type TransportKind string

const (
	TransportWS     TransportKind = "ws"     // the signaling WebSocket itself carries frames
	TransportWebRTC TransportKind = "webrtc" // an ordered WebRTC DataChannel carries frames
)

// ParseTransport converts a CLI string into a TransportKind.
func ParseTransport(s string) (TransportKind, error) {
	switch TransportKind(s) {
	case TransportWS, TransportWebRTC:
		return TransportKind(s), nil
	}
	return "", fmt.Errorf("invalid transport %q: must be 'ws' or 'webrtc'", s)
}

// Hub tuning defaults.
const (
	DefaultPacingDelay    = 250 * time.Millisecond // gap between consecutive sends on one hub
	DefaultReadBufferSize = 1024                   // bytes per connection read
	DefaultQueueSize      = 256                    // dispatch queue capacity
)

// HubConfig parameterises a relay hub session.
type HubConfig struct {
	Role           Role
	SelfID         string        // this device's MAC-like identifier
	SelfName       string        // this device's display name
	PacingDelay    time.Duration // minimum gap between two outbound sends; <= 0 disables pacing
	ReadBufferSize int           // per-connection read buffer
	QueueSize      int           // dispatch queue capacity
}

// DefaultHubConfig returns a HubConfig with the default tuning values.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Role:           RolePlayer,
		PacingDelay:    DefaultPacingDelay,
		ReadBufferSize: DefaultReadBufferSize,
		QueueSize:      DefaultQueueSize,
	}
}

// Config stores all parameters gathered from CLI flags or interactive prompts.
type Config struct {
	Role        Role
	Name        string        // display name announced to peers
	ID          string        // device identifier; generated when empty
	Listen      string        // Host: signaling server address, e.g. ":7275"
	URL         string        // Player: WebSocket URL of the host
	PIN         string        // shared secret players present to the host
	MaxConns    int           // Host: concurrent WebSocket connections; 0 is unlimited
	Transport   TransportKind // Player: stream carrier after signaling
	HistoryPath string        // chat history database; empty disables persistence
	Debug       bool
}
