// Package config loads engine configuration from environment variables using
// envconfig struct-tag mapping.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings for the wagering engine.
type Config struct {
	// --- HTTP ---
	Port int `envconfig:"PORT" default:"8080"`

	// --- Storage ---
	// Empty DATABASE_URL falls back to the in-memory store (dev only).
	DatabaseURL string `envconfig:"DATABASE_URL"`
	// Empty REDIS_URL disables the read-through cache.
	RedisURL string        `envconfig:"REDIS_URL"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	// --- Access control ---
	AdminAccount      string   `envconfig:"ADMIN_ACCOUNT" required:"true"`
	BridgeAccountsRaw string   `envconfig:"BRIDGE_ACCOUNTS"`
	BridgeAccounts    []string `envconfig:"-"` // parsed from BridgeAccountsRaw
}

// Validate checks cross-field constraints envconfig tags cannot express.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.RedisURL != "" && c.DatabaseURL == "" {
		return fmt.Errorf("REDIS_URL requires DATABASE_URL")
	}
	return nil
}

// Load reads environment variables into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.BridgeAccounts = parseCSV(cfg.BridgeAccountsRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
