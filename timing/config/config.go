// Package config holds the tunable timing parameters of the simulator.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the timing knobs of the pipeline model.
type Config struct {
	// WatchdogThreshold is the number of cycles without a retired
	// instruction after which the simulation aborts as deadlocked.
	// Default: 1000.
	WatchdogThreshold uint64 `json:"watchdog_threshold"`

	// BHTSize is the number of 2-bit counters in the branch history table
	// of the bimodal predictor. Must be a power of 2. Default: 1024.
	BHTSize uint32 `json:"bht_size"`

	// BTBSize is the number of entries in the branch target buffer.
	// Must be a power of 2. Default: 256.
	BTBSize uint32 `json:"btb_size"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		WatchdogThreshold: 1000,
		BHTSize:           1024,
		BTBSize:           256,
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.WatchdogThreshold == 0 {
		return fmt.Errorf("watchdog_threshold must be > 0")
	}
	if c.BHTSize == 0 || c.BHTSize&(c.BHTSize-1) != 0 {
		return fmt.Errorf("bht_size must be a power of 2")
	}
	if c.BTBSize == 0 || c.BTBSize&(c.BTBSize-1) != 0 {
		return fmt.Errorf("btb_size must be a power of 2")
	}
	return nil
}
