// Package config loads and validates the provider configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/jnwerner/vouch/internal/callback"
)

// Config is the deployment configuration for a provider instance.
type Config struct {
	Store    StoreConfig     `yaml:"store"`
	Tokens   TokenConfig     `yaml:"tokens"`
	Nonce    NonceConfig     `yaml:"nonce"`
	Callback callback.Config `yaml:"callback"`
	Scope    ScopeConfig     `yaml:"scope"`
	Audit    AuditConfig     `yaml:"audit"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	// Type is "memory" or "bolt".
	Type string `yaml:"type"`

	// Path is the database file for the bolt backend.
	Path string `yaml:"path"`
}

// TokenConfig tunes token minting.
type TokenConfig struct {
	// KeyLength is the hex length of minted keys and secrets.
	KeyLength int `yaml:"key_length"`

	// RequestTTL bounds the life of an unexchanged request token
	// (default 10m). AccessTTL bounds access tokens; 0 means they live
	// until removed.
	RequestTTL time.Duration `yaml:"request_ttl"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
}

// NonceConfig tunes the replay window.
type NonceConfig struct {
	// Window is the replay-detection window (default 5m); Skew is the
	// tolerated future clock skew (default 1m).
	Window time.Duration `yaml:"window"`
	Skew   time.Duration `yaml:"skew"`
}

// ScopeConfig selects a scope manager. The manager-specific fields are
// captured inline and decoded by the manager's own config type.
type ScopeConfig struct {
	// Type is "regex" (default) or "expr".
	Type string `yaml:"type"`

	Config map[string]any `yaml:",inline"`
}

// AuditConfig selects an auditor.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // "memory" or "file"
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given: an
// in-memory store with the documented policy defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Type: "memory"},
	}
}

// Load reads and parses the configuration file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Type {
	case "", "memory":
	case "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("store type 'bolt' requires store.path")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	if c.Tokens.KeyLength < 0 {
		return fmt.Errorf("tokens.key_length must not be negative")
	}

	switch c.Scope.Type {
	case "", "regex", "expr":
	default:
		return fmt.Errorf("unknown scope type %q", c.Scope.Type)
	}

	if c.Audit.Enabled {
		switch c.Audit.Type {
		case "", "memory":
		case "file":
			if c.Audit.Path == "" {
				return fmt.Errorf("audit type 'file' requires audit.path")
			}
		default:
			return fmt.Errorf("unknown audit type %q", c.Audit.Type)
		}
	}

	return nil
}
