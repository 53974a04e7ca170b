// Package config manages billsync configuration and the .billsync directory
// layout. It handles loading, saving, and initializing a workspace.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	BillsyncDir  = ".billsync"
	ConfigFile   = "config"
	DatabaseFile = "billsync.db"
	LogsDir      = "logs"
)

// Config represents a billsync workspace configuration.
type Config struct {
	ServerURL        string `toml:"server_url"`
	APIToken         string `toml:"api_token"`
	SyncIntervalSecs int    `toml:"sync_interval_seconds"`
	MaxRetries       int    `toml:"max_retries"`
	ProbeIntervalSec int    `toml:"probe_interval_seconds"`

	// Collections maps local collection names to backend resources. When
	// empty the built-in business collections are used.
	Collections map[string]string `toml:"collections"`

	path string // path to .billsync directory
}

// FindRoot finds the .billsync directory by walking up from the current
// directory.
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		p := filepath.Join(dir, BillsyncDir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a billsync workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the nearest .billsync directory.
func Load() (*Config, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadDir(root)
}

// LoadDir loads the configuration from a specific .billsync directory.
func LoadDir(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = root
	return &cfg, nil
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Path returns the path to the .billsync directory.
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the bbolt database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// LogsPath returns the directory daemon logs are written to.
func (c *Config) LogsPath() string {
	return filepath.Join(c.path, LogsDir)
}

// SyncInterval returns the engine wake-up interval.
func (c *Config) SyncInterval() time.Duration {
	if c.SyncIntervalSecs <= 0 {
		return time.Minute
	}
	return time.Duration(c.SyncIntervalSecs) * time.Second
}

// ProbeInterval returns how often reachability is probed.
func (c *Config) ProbeInterval() time.Duration {
	if c.ProbeIntervalSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ProbeIntervalSec) * time.Second
}

// Initialize creates a new .billsync directory with initial configuration.
func Initialize(serverURL, apiToken string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root := filepath.Join(cwd, BillsyncDir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("billsync workspace already exists")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .billsync directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, LogsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	cfg := &Config{
		ServerURL:        serverURL,
		APIToken:         apiToken,
		SyncIntervalSecs: 60,
		MaxRetries:       5,
		ProbeIntervalSec: 15,
		path:             root,
	}
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
