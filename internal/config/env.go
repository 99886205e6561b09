// internal/config/env.go
package config

import (
	"os"
	"strconv"
	"strings"
)

// LoadFromEnv applies POOLWATCH_* environment overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("POOLWATCH_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("POOLWATCH_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("POOLWATCH_WEBHOOK_FORMAT"); v != "" {
		cfg.WebhookFormat = v
	}
	if v := os.Getenv("POOLWATCH_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowSize = n
		}
	}
	if v := os.Getenv("POOLWATCH_ERROR_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ErrorRateThreshold = f
		}
	}
	if v := os.Getenv("POOLWATCH_ALERT_COOLDOWN_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AlertCooldownSec = n
		}
	}
	if v := os.Getenv("POOLWATCH_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinSamples = n
		}
	}
	if v := os.Getenv("POOLWATCH_MAINTENANCE_MODE"); v != "" {
		cfg.MaintenanceMode = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("POOLWATCH_READ_FROM_START"); v != "" {
		cfg.ReadFromStart = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("POOLWATCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("POOLWATCH_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("POOLWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// GetEnvOrDefault returns an environment variable or a fallback value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
