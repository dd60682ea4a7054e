// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml.
type Config struct {
	Slack     SlackConfig     `yaml:"slack"`
	Database  DatabaseConfig  `yaml:"database"`
	Backend   BackendConfig   `yaml:"backend"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Admins lists Slack user IDs allowed to run mutating commands
	// (flows add/remove/default, channel set/reset). An empty list means
	// every user is allowed; see IsAdmin.
	Admins []string `yaml:"admins"`

	// DedupWindowSec is how long recently handled message keys are
	// remembered to absorb Slack event redelivery.
	DedupWindowSec int `yaml:"dedup_window_sec"`
}

// SlackConfig holds the Socket Mode tokens.
type SlackConfig struct {
	AppToken string `yaml:"app_token"` // xapp-...
	BotToken string `yaml:"bot_token"` // xoxb-...
}

// DatabaseConfig selects and configures the durable store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`   // mysql
	Port   int    `yaml:"port"`   // mysql
	Name   string `yaml:"name"`   // mysql database name
}

// BackendConfig holds Langflow client settings plus an optional seed flow
// that is created as the default on first start.
type BackendConfig struct {
	RequestTimeoutSec int      `yaml:"request_timeout_sec"` // total run-call timeout
	ConnectTimeoutSec int      `yaml:"connect_timeout_sec"`
	MaxRetries        int      `yaml:"max_retries"`
	DefaultFlow       SeedFlow `yaml:"default_flow"`
}

// SeedFlow describes a flow to register at startup if it doesn't exist yet.
// All three of URL, FlowID and APIKey must be set for seeding to happen.
type SeedFlow struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	FlowID string `yaml:"flow_id"`
	APIKey string `yaml:"api_key"`
}

// SessionsConfig controls thread-session retention.
type SessionsConfig struct {
	TTLHours  int    `yaml:"ttl_hours"`
	SweepCron string `yaml:"sweep_cron"` // 5-field cron expression
}

// DashboardConfig controls the JSON status API.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/switchboard.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Backend.RequestTimeoutSec == 0 {
		c.Backend.RequestTimeoutSec = 300
	}
	if c.Backend.ConnectTimeoutSec == 0 {
		c.Backend.ConnectTimeoutSec = 30
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = 2
	}
	if c.Backend.DefaultFlow.Name == "" {
		c.Backend.DefaultFlow.Name = "default"
	}
	if c.Sessions.TTLHours == 0 {
		c.Sessions.TTLHours = 24
	}
	if c.Sessions.SweepCron == "" {
		c.Sessions.SweepCron = "0 * * * *"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.DedupWindowSec == 0 {
		c.DedupWindowSec = 60
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Slack.AppToken == "" {
		errs = append(errs, "slack.app_token is required")
	}
	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.Name == "" {
		errs = append(errs, "database.name is required for mysql")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HasSeedFlow reports whether the config carries a complete seed flow.
func (c *Config) HasSeedFlow() bool {
	df := c.Backend.DefaultFlow
	return df.URL != "" && df.FlowID != "" && df.APIKey != ""
}

// IsAdmin reports whether the user may run mutating commands. When no admins
// are configured every user passes, so a fresh install can be set up from
// chat before the config is edited.
func (c *Config) IsAdmin(userID string) bool {
	if len(c.Admins) == 0 {
		return true
	}
	for _, id := range c.Admins {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}
