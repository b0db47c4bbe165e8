package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/cellview/internal/rules"
	"github.com/rendis/cellview/internal/validation"
)

// Config holds all cellview configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath              string             `json:"db_path"`
	LogLevel            string             `json:"log_level"`
	ShapePrefix         string             `json:"shape_prefix"`
	MaintenanceSchedule string             `json:"maintenance_schedule"`
	EventRetention      string             `json:"event_retention"`
	CustomRules         []rules.CustomRule `json:"custom_rules,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:              filepath.Join(cellviewDir(), "cellview.db"),
		LogLevel:            "info",
		ShapePrefix:         "cv",
		MaintenanceSchedule: "0 3 * * *",
		EventRetention:      "720h",
	}
}

func cellviewDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cellview"
	}
	return filepath.Join(home, ".cellview")
}

func settingsPath() string {
	return filepath.Join(cellviewDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CELLVIEW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CELLVIEW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CELLVIEW_SHAPE_PREFIX"); v != "" {
		cfg.ShapePrefix = v
	}
	if v := os.Getenv("CELLVIEW_MAINTENANCE_SCHEDULE"); v != "" {
		cfg.MaintenanceSchedule = v
	}
	if v := os.Getenv("CELLVIEW_EVENT_RETENTION"); v != "" {
		cfg.EventRetention = v
	}

	return cfg
}

// validate checks the fields that would otherwise fail late, at serve time.
func (c Config) validate(v validation.Validator) error {
	if _, err := c.retention(); err != nil {
		return err
	}
	if len(c.CustomRules) > 0 {
		if err := v.ValidateRuleConfig(c.CustomRules); err != nil {
			return fmt.Errorf("custom_rules: %w", err)
		}
	}
	return nil
}

// retention parses EventRetention. Empty or "0" disables pruning.
func (c Config) retention() (time.Duration, error) {
	if c.EventRetention == "" || c.EventRetention == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.EventRetention)
	if err != nil {
		return 0, fmt.Errorf("event_retention: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("event_retention: negative duration %s", c.EventRetention)
	}
	return d, nil
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dbURI returns DBPath as a libSQL file URI.
func (c Config) dbURI() string {
	if strings.HasPrefix(c.DBPath, "file:") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}
