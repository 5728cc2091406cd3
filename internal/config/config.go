// Package config holds the role type and the fixed connection configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role represents the side a user takes in one negotiation attempt.
type Role string

const (
	RoleNone      Role = ""
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// ParseRole accepts the role names used on the command line and the bridge.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiator", "offer", "host":
		return RoleInitiator, nil
	case "responder", "answer", "client":
		return RoleResponder, nil
	default:
		return RoleNone, fmt.Errorf("invalid role %q: must be 'initiator' or 'responder'", s)
	}
}

// DefaultSTUNServer is the single public path-discovery helper. There is no
// TURN fallback; a peer that cannot be reached directly ends up Failed.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// BridgeConfig configures the optional local WebSocket UI bridge.
type BridgeConfig struct {
	Listen string `yaml:"listen"` // empty disables the bridge
	PIN    string `yaml:"pin"`    // empty generates a random PIN
}

// Config stores all connection parameters.
type Config struct {
	ICEServers      []string     `yaml:"ice_servers"`
	ChannelLabel    string       `yaml:"channel_label"`
	Ordered         bool         `yaml:"ordered"`
	IncludeLoopback bool         `yaml:"include_loopback"` // allow 127.0.0.1 candidates (same-machine use)
	Bridge          BridgeConfig `yaml:"bridge"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ICEServers:   []string{DefaultSTUNServer},
		ChannelLabel: "chat",
		Ordered:      true,
	}
}

// Load reads a YAML file and overlays it on Default. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate enforces the single-helper, no-relay ICE policy.
func (c Config) Validate() error {
	if len(c.ICEServers) > 1 {
		return fmt.Errorf("at most one ICE server may be configured, got %d", len(c.ICEServers))
	}
	for _, u := range c.ICEServers {
		lower := strings.ToLower(u)
		switch {
		case strings.HasPrefix(lower, "stun:"), strings.HasPrefix(lower, "stuns:"):
		case strings.HasPrefix(lower, "turn:"), strings.HasPrefix(lower, "turns:"):
			return fmt.Errorf("relay server %q is not supported", u)
		default:
			return fmt.Errorf("invalid ICE server URL %q", u)
		}
	}
	if c.ChannelLabel == "" {
		return errors.New("channel_label must not be empty")
	}
	return nil
}
