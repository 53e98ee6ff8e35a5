package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the engine daemon configuration
type Config struct {
	// ListenAddr is the address the trigger API binds to
	ListenAddr string `json:"listen_addr"`
	// LogLevel is one of debug, info, warn, error, none
	LogLevel string `json:"log_level"`
	// LogPath is the log file location; empty disables file logging
	LogPath string `json:"log_path,omitempty"`
	// RegistryPath points at the agent registry file (agent id -> program URI)
	RegistryPath string `json:"registry_path"`
	// ResultsDBPath enables the sqlite result sink when non-empty
	ResultsDBPath string `json:"results_db_path,omitempty"`
	// TickIntervalSeconds makes the daemon tick itself; 0 means external
	// ticks only
	TickIntervalSeconds int `json:"tick_interval_seconds,omitempty"`
}

// Default returns a configuration with sane defaults applied
func Default() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:8844",
		LogLevel:     "info",
		RegistryPath: "agents.json",
	}
}

// Load reads configuration from a JSON file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to a JSON file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.RegistryPath == "" {
		c.RegistryPath = def.RegistryPath
	}
	if c.TickIntervalSeconds < 0 {
		c.TickIntervalSeconds = 0
	}
}
