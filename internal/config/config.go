// Package config handles loading the checker config.toml file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tgienger/checker/internal/models"
)

// Backend names accepted in the backend setting
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents the config.toml file.
type Config struct {
	// Backend selects the document store: sqlite, postgres or memory.
	Backend string `toml:"backend"`
	// DBPath is the sqlite database file. Empty uses the default data path.
	DBPath string `toml:"db_path"`
	// PostgresDSN is required when Backend is postgres.
	PostgresDSN string `toml:"postgres_dsn"`
	// Role is the observing user's role, TeamLead or Creator.
	Role string `toml:"role"`
	// LogFile receives logs while the TUI owns the terminal.
	LogFile string `toml:"log_file"`
	// MetricsAddr serves /metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Backend: BackendSQLite,
		Role:    string(models.RoleTeamLead),
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/checker/config.toml, falling back to
// ~/.config.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "checker", "config.toml"), nil
}

// DefaultLogPath returns $XDG_STATE_HOME/checker/checker.log, falling back
// to ~/.local/state.
func DefaultLogPath() (string, error) {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "checker", "checker.log"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
// Unknown keys are rejected so typos do not silently fall back.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Save writes cfg to path, creating its directory
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks backend and role settings
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("backend %q requires postgres_dsn", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want sqlite, postgres or memory)", c.Backend)
	}
	if _, err := models.ParseRole(c.Role); err != nil {
		return err
	}
	return nil
}

// ParsedRole returns the configured role. Call Validate first.
func (c *Config) ParsedRole() models.Role {
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return models.RoleTeamLead
	}
	return role
}
