package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Webhook endpoints
	WebhookFetchURL  string
	WebhookUpdateURL string
	WebhookSaveURL   string
	WebhookUploadURL string
	WebhookTimeout   time.Duration

	// Refresher
	RefreshInterval time.Duration

	// Syncer
	SyncSuccessTTL time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/dashboard.db"),

		WebhookFetchURL:  getEnv("WEBHOOK_FETCH_URL", ""),
		WebhookUpdateURL: getEnv("WEBHOOK_UPDATE_URL", ""),
		WebhookSaveURL:   getEnv("WEBHOOK_SAVE_URL", ""),
		WebhookUploadURL: getEnv("WEBHOOK_UPLOAD_URL", ""),
		WebhookTimeout:   getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 5*time.Minute),
		SyncSuccessTTL:  getEnvDuration("SYNC_SUCCESS_TTL", 3*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	required := []struct {
		name  string
		value string
	}{
		{"WEBHOOK_FETCH_URL", c.WebhookFetchURL},
		{"WEBHOOK_UPDATE_URL", c.WebhookUpdateURL},
		{"WEBHOOK_SAVE_URL", c.WebhookSaveURL},
		{"WEBHOOK_UPLOAD_URL", c.WebhookUploadURL},
	}
	for _, r := range required {
		if r.value == "" {
			errors = append(errors, fmt.Sprintf("%s is required", r.name))
			continue
		}
		parsed, err := url.Parse(r.value)
		if err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': %v", r.name, r.value, err))
			continue
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid %s scheme '%s': must be 'http' or 'https'", r.name, parsed.Scheme))
		}
	}

	if c.WebhookTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid webhook timeout %v: must be at least 1 second", c.WebhookTimeout))
	}

	if c.RefreshInterval < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 10 seconds", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}

	if c.SyncSuccessTTL < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid sync success TTL %v: must be at least 100ms", c.SyncSuccessTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
