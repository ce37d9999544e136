// Package config loads the CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tsl2561/protocol"
)

const (
	AdapterGeneric = "generic"
	AdapterRDWR    = "rdwr"
	AdapterNanoPi  = "nanopi"
	AdapterMCP2221 = "mcp2221"
	AdapterSim     = "sim"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Adapter    string `yaml:"adapter"`
	Device     string `yaml:"device"`
	Bus        int    `yaml:"bus"`
	Address    uint16 `yaml:"address"`
	SpeedHz    int    `yaml:"speed_hz"`
	BlockReads bool   `yaml:"block_reads"`
	Node       string `yaml:"node"`
}

type Option func(*Config)

func WithAdapter(adapter string) Option {
	return func(c *Config) {
		c.Adapter = adapter
	}
}

func WithDevice(dev string) Option {
	return func(c *Config) {
		c.Device = dev
	}
}

func WithBus(bus int) Option {
	return func(c *Config) {
		c.Bus = bus
	}
}

func WithAddress(addr uint16) Option {
	return func(c *Config) {
		c.Address = addr
	}
}

func Default() Config {
	return Config{
		Adapter: AdapterGeneric,
		Device:  "/dev/i2c-1",
		Bus:     1,
		Address: protocol.DefaultAddress,
		SpeedHz: 100_000,
		Node:    "tsl2561",
	}
}

// DefaultPath is $HOME/.config/tsl2561.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tsl2561.yaml"
	}
	return filepath.Join(home, ".config", "tsl2561.yaml")
}

// Load reads path on top of the defaults and applies opts last. A missing file is
// not an error.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("could not read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterGeneric, AdapterRDWR, AdapterNanoPi, AdapterMCP2221, AdapterSim:
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalid, c.Adapter)
	}
	if c.Address == 0 || c.Address > 0x7F {
		return fmt.Errorf("%w: address %#x", ErrInvalid, c.Address)
	}
	if c.SpeedHz < 0 {
		return fmt.Errorf("%w: speed %d", ErrInvalid, c.SpeedHz)
	}
	if c.Node == "" {
		return fmt.Errorf("%w: empty node name", ErrInvalid)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
