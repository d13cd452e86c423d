// Package config provides the YAML configuration model with
// first-run creation and defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// DataDir holds the snapshot database and the search index.
	DataDir string `yaml:"data_dir"`

	// Listen is the HTTP listen address for the JSON API.
	Listen string `yaml:"listen"`

	// WebhookURL is the JSON endpoint supplying LiveOps schedule
	// records. Empty disables webhook fetching. The WEBHOOK_URL
	// environment variable overrides it.
	WebhookURL string `yaml:"webhook_url"`

	// RefreshCron is a cron-style schedule (e.g. "*/30 * * * *") for
	// periodic webhook refresh while serving. Empty disables it.
	RefreshCron string `yaml:"refresh"`

	// EmptyQuery picks the policy when no search predicate is
	// active: "all" lists every event, "none" lists nothing.
	EmptyQuery string `yaml:"empty_query"`

	// HighlightSeconds is how long a selected event's date stays
	// highlighted before clearing.
	HighlightSeconds int `yaml:"highlight_seconds"`

	// FetchTimeoutSeconds bounds one webhook fetch.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the in-memory default configuration.
func Default() *Config {
	return &Config{
		DataDir:             "./data",
		Listen:              "127.0.0.1:6894",
		EmptyQuery:          "all",
		HighlightSeconds:    5,
		FetchTimeoutSeconds: 30,
		LogLevel:            "info",
	}
}

// Load reads the config file at path. A missing file is created with
// defaults on first run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config with owner-only permissions.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) validate() error {
	switch c.EmptyQuery {
	case "", "all", "none":
	default:
		return fmt.Errorf("empty_query must be \"all\" or \"none\", got %q", c.EmptyQuery)
	}
	if c.HighlightSeconds < 0 {
		return fmt.Errorf("highlight_seconds must not be negative")
	}
	return nil
}

// EmptyShowsAll reports whether an empty query lists the whole store.
func (c *Config) EmptyShowsAll() bool {
	return c.EmptyQuery != "none"
}

// HighlightWindow returns the highlight expiry window.
func (c *Config) HighlightWindow() time.Duration {
	if c.HighlightSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.HighlightSeconds) * time.Second
}

// FetchTimeout returns the webhook fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// DBPath returns the snapshot database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "opscal.db")
}

// IndexPath returns the search index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "bleve")
}
