// internal/config/config.go

// Package config loads and validates the monitor's configuration from a
// YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Invalid numeric settings are
// fatal at startup: the monitor refuses to run with undefined aggregation
// semantics.
type Config struct {
	// LogFile is the proxy access log to tail.
	LogFile string `yaml:"log_file"`

	// WebhookURL receives alert payloads. Empty means alerts are logged
	// locally only.
	WebhookURL string `yaml:"webhook_url"`

	// WebhookFormat is "slack" (attachment payload) or "json" (raw intent).
	WebhookFormat string `yaml:"webhook_format"`

	// WindowSize is the sliding-window length in requests.
	WindowSize int `yaml:"window_size"`

	// ErrorRateThreshold is the alerting threshold in percent.
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`

	// AlertCooldownSec is the per-kind minimum gap between alerts.
	AlertCooldownSec int `yaml:"alert_cooldown_sec"`

	// MinSamples is the sample floor for error-rate alerts. Zero defaults
	// to WindowSize, i.e. the window must fill before the first alert.
	MinSamples int `yaml:"min_samples"`

	// MaintenanceMode suppresses all alerts. Also togglable at runtime via
	// the admin API.
	MaintenanceMode bool `yaml:"maintenance_mode"`

	// DispatchTimeoutSec bounds each webhook delivery.
	DispatchTimeoutSec int `yaml:"dispatch_timeout_sec"`

	// PollIntervalMS bounds how long the tailer sleeps between reads.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// ReadFromStart processes existing log contents instead of starting
	// at the end of the file.
	ReadFromStart bool `yaml:"read_from_start"`

	// ListenAddr serves the admin API and /metrics. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// DatabaseURL enables the Postgres alert-history sink. Empty disables.
	DatabaseURL string `yaml:"database_url"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		LogFile:            "/var/log/nginx/access.log",
		WebhookFormat:      "slack",
		WindowSize:         200,
		ErrorRateThreshold: 2.0,
		AlertCooldownSec:   300,
		DispatchTimeoutSec: 10,
		PollIntervalMS:     100,
		ListenAddr:         ":9400",
		LogLevel:           "info",
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)

	if cfg.MinSamples == 0 {
		cfg.MinSamples = cfg.WindowSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the numeric configuration.
func (c *Config) Validate() error {
	if c.LogFile == "" {
		return errors.New("config: log_file is required")
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("config: window_size must be >= 1, got %d", c.WindowSize)
	}
	if c.ErrorRateThreshold <= 0 {
		return fmt.Errorf("config: error_rate_threshold must be > 0, got %g", c.ErrorRateThreshold)
	}
	if c.AlertCooldownSec < 0 {
		return fmt.Errorf("config: alert_cooldown_sec must be >= 0, got %d", c.AlertCooldownSec)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("config: min_samples must be >= 1, got %d", c.MinSamples)
	}
	if c.DispatchTimeoutSec < 1 {
		return fmt.Errorf("config: dispatch_timeout_sec must be >= 1, got %d", c.DispatchTimeoutSec)
	}
	if c.PollIntervalMS < 1 {
		return fmt.Errorf("config: poll_interval_ms must be >= 1, got %d", c.PollIntervalMS)
	}
	return nil
}

// Cooldown returns the alert cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.AlertCooldownSec) * time.Second
}

// DispatchTimeout returns the webhook delivery timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSec) * time.Second
}

// PollInterval returns the tail poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
