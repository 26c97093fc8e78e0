package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Runtime configuration for the demo driver and stress tests. All sizes
// are bytes. Zero-valued fields fall back to the defaults, so a config
// file only needs the knobs it changes.

// Config holds the tunable capacities of one execution context.
type Config struct {
	StackCapacity int    `yaml:"stack_capacity"`
	FrameLocalCap int    `yaml:"frame_local_cap"`
	HeapCapacity  uint64 `yaml:"heap_capacity"`
	HeapThreshold uint64 `yaml:"heap_threshold"`
}

// Default returns the capacities used when no config file is given.
func Default() Config {
	return Config{
		StackCapacity: 64 * 1024,
		FrameLocalCap: 0,
		HeapCapacity:  0,
		HeapThreshold: 1 << 20,
	}
}

// Load reads a YAML config file and fills unset fields from Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes and fills unset fields from Default.
func Parse(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	def := Default()
	if cfg.StackCapacity == 0 {
		cfg.StackCapacity = def.StackCapacity
	}
	if cfg.HeapThreshold == 0 {
		cfg.HeapThreshold = def.HeapThreshold
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.StackCapacity < 0 {
		return fmt.Errorf("stack_capacity must be >= 0, got %d", c.StackCapacity)
	}
	if c.FrameLocalCap < 0 {
		return fmt.Errorf("frame_local_cap must be >= 0, got %d", c.FrameLocalCap)
	}
	if c.HeapCapacity > 0 && c.HeapThreshold > c.HeapCapacity {
		return fmt.Errorf("heap_threshold %d exceeds heap_capacity %d",
			c.HeapThreshold, c.HeapCapacity)
	}
	return nil
}
