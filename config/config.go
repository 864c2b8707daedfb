// Package config loads TOML configuration for the reactor package's
// *FromConfig server constructors (reactor.NewTCPServerFromConfig and
// friends); the literal-argument constructors remain available for callers
// who don't want a config file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds the `[server]` table.
type ServerConfig struct {
	Address string `toml:"address"`
	Workers int    `toml:"workers"`
}

// ReactorConfig holds the `[reactor]` table: tuning knobs for a single
// reactor's poll batch and per-socket buffer sizing.
type ReactorConfig struct {
	ReadBufferCap int `toml:"read_buffer_cap"`
	EventCapacity int `toml:"event_capacity"`
	UDPScratchCap int `toml:"udp_scratch_cap"`
}

// Config is the root document: `[server]` and `[reactor]` tables.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Reactor ReactorConfig `toml:"reactor"`
}

// defaults mirror the literal constants used when no config file is
// supplied (reactor.go's maxPollEvents, buffer.go's initialSize,
// bufpool's DatagramScratchSize).
func defaults() Config {
	return Config{
		Server: ServerConfig{
			Address: ":0",
			Workers: 1,
		},
		Reactor: ReactorConfig{
			ReadBufferCap: 1024,
			EventCapacity: 1024,
			UDPScratchCap: 64 * 1024,
		},
	}
}

// Default returns the built-in defaults, for callers that want a Config
// without reading a TOML file.
func Default() Config {
	return defaults()
}

// Load reads and parses path, returning a Config seeded with defaults for
// any table/field the file omits.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return &cfg, nil
}
