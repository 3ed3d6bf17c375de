// Package config loads server configuration from HCL, generalized from
// internal/server/config.go's ServerConfig/LoadServerConfig into the shape
// this module's SPEC_FULL.md ROOM DEFAULTS block needs: one server address
// plus a single set of room defaults applied at room-creation time, instead
// of a fixed list of pre-declared tables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the top-level HCL document.
type Config struct {
	Server  ServerSettings `hcl:"server,block"`
	Rooms   RoomDefaults   `hcl:"room_defaults,block"`
	Logging LoggingConfig  `hcl:"logging,block"`
}

// ServerSettings controls the transport listener's bind address and port.
type ServerSettings struct {
	Address string `hcl:"address,optional"`
	Port    int    `hcl:"port,optional"`
}

// RoomDefaults seeds every room created through the control API that
// doesn't override a field explicitly.
type RoomDefaults struct {
	SeatLimit       int    `hcl:"seat_limit,optional"`
	MinBet          int    `hcl:"min_bet,optional"`
	MaxBet          int    `hcl:"max_bet,optional"`
	BuyIn           int    `hcl:"buy_in,optional"`
	TurnTimeout     string `hcl:"turn_timeout,optional"`
	DisconnectGrace string `hcl:"disconnect_grace,optional"`
}

// LoggingConfig controls charmbracelet/log's verbosity and format.
type LoggingConfig struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// TurnTimeoutDuration parses TurnTimeout, falling back to the default.
func (d RoomDefaults) TurnTimeoutDuration() time.Duration {
	return durationOr(d.TurnTimeout, 30*time.Second)
}

// DisconnectGraceDuration parses DisconnectGrace, falling back to the default.
func (d RoomDefaults) DisconnectGraceDuration() time.Duration {
	return durationOr(d.DisconnectGrace, 60*time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Default returns the baked-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerSettings{Address: "0.0.0.0", Port: 8080},
		Rooms: RoomDefaults{
			SeatLimit:       9,
			MinBet:          10,
			MaxBet:          0,
			BuyIn:           1000,
			TurnTimeout:     "30s",
			DisconnectGrace: "60s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and decodes an HCL config file, falling back to Default when
// the path doesn't exist (mirrors LoadServerConfig's missing-file behavior).
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", path, diags.Error())
	}

	cfg := Default()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %s", path, diags.Error())
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Rooms.SeatLimit == 0 {
		c.Rooms.SeatLimit = def.Rooms.SeatLimit
	}
	if c.Rooms.MinBet == 0 {
		c.Rooms.MinBet = def.Rooms.MinBet
	}
	if c.Rooms.BuyIn == 0 {
		c.Rooms.BuyIn = def.Rooms.BuyIn
	}
	if c.Rooms.TurnTimeout == "" {
		c.Rooms.TurnTimeout = def.Rooms.TurnTimeout
	}
	if c.Rooms.DisconnectGrace == "" {
		c.Rooms.DisconnectGrace = def.Rooms.DisconnectGrace
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate checks the decoded configuration for self-consistency, mirroring
// ServerConfig.Validate's per-field range checks.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Rooms.SeatLimit < 2 {
		return fmt.Errorf("seat_limit must be at least 2")
	}
	if c.Rooms.MinBet <= 0 {
		return fmt.Errorf("min_bet must be positive")
	}
	if c.Rooms.BuyIn <= 0 {
		return fmt.Errorf("buy_in must be positive")
	}
	if c.Rooms.MaxBet != 0 && c.Rooms.MaxBet < c.Rooms.MinBet {
		return fmt.Errorf("max_bet must be zero (unlimited) or >= min_bet")
	}
	return nil
}
