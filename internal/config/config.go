// Package config provides configuration loading for patternd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults. This package covers the store, logging,
// engine tuning, and maintenance scheduling settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/patternbank"
)

// Config holds the complete patternd configuration.
type Config struct {
	Store       StoreConfig       `koanf:"store"`
	Log         LogConfig         `koanf:"log"`
	Engine      EngineConfig      `koanf:"engine"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// StoreConfig holds pattern store configuration.
type StoreConfig struct {
	// Path is the Badger database directory.
	Path string `koanf:"path"`

	// InMemory keeps all data in memory. Intended for tests and dry runs;
	// nothing survives process exit.
	InMemory bool `koanf:"in_memory"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format selects the encoder: "json" or "console".
	Format string `koanf:"format"`
}

// EngineConfig holds the confidence engine tunables exposed through
// configuration. Fields left at zero fall back to the engine defaults.
type EngineConfig struct {
	AutoApplyThreshold float64 `koanf:"auto_apply_threshold"`
	SuggestThreshold   float64 `koanf:"suggest_threshold"`
	AdvisoryThreshold  float64 `koanf:"advisory_threshold"`

	// RetentionDays is how long a low-confidence pattern may stay idle
	// before retention cleanup removes it.
	RetentionDays int `koanf:"retention_days"`

	// CorrelationWindowDays bounds the feedback history the correlation
	// analyzer reads.
	CorrelationWindowDays int `koanf:"correlation_window_days"`
}

// MaintenanceConfig holds background maintenance scheduling.
type MaintenanceConfig struct {
	Enabled    bool     `koanf:"enabled"`
	Interval   Duration `koanf:"interval"`
	JobTimeout Duration `koanf:"job_timeout"`
	Projects   []string `koanf:"projects"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - The store path is empty for a persistent store
//   - The log level or format is unknown
//   - Engine thresholds are out of range or inverted
//   - Maintenance is enabled without projects
func (c *Config) Validate() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return errors.New("store path required unless in_memory is set")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q (must be json or console)", c.Log.Format)
	}

	for name, v := range map[string]float64{
		"auto_apply_threshold": c.Engine.AutoApplyThreshold,
		"suggest_threshold":    c.Engine.SuggestThreshold,
		"advisory_threshold":   c.Engine.AdvisoryThreshold,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("invalid %s: %v (must be 0.0-1.0)", name, v)
		}
	}
	if c.Engine.AutoApplyThreshold < c.Engine.SuggestThreshold {
		return errors.New("auto_apply_threshold must be at least suggest_threshold")
	}
	if c.Engine.SuggestThreshold < c.Engine.AdvisoryThreshold {
		return errors.New("suggest_threshold must be at least advisory_threshold")
	}

	if c.Engine.RetentionDays < 0 {
		return errors.New("retention_days cannot be negative")
	}
	if c.Engine.CorrelationWindowDays < 0 {
		return errors.New("correlation_window_days cannot be negative")
	}

	if c.Maintenance.Enabled {
		if len(c.Maintenance.Projects) == 0 {
			return errors.New("maintenance requires at least one project")
		}
		if c.Maintenance.Interval.Duration() <= 0 {
			return errors.New("maintenance interval must be positive")
		}
	}

	return nil
}

// PatternbankConfig translates the file-level engine settings into the
// engine's own configuration, starting from the engine defaults.
func (c *Config) PatternbankConfig() patternbank.Config {
	cfg := patternbank.DefaultConfig()

	if c.Engine.AutoApplyThreshold > 0 {
		cfg.AutoApplyThreshold = c.Engine.AutoApplyThreshold
	}
	if c.Engine.SuggestThreshold > 0 {
		cfg.SuggestThreshold = c.Engine.SuggestThreshold
	}
	if c.Engine.AdvisoryThreshold > 0 {
		cfg.AdvisoryThreshold = c.Engine.AdvisoryThreshold
	}
	if c.Engine.RetentionDays > 0 {
		cfg.RetentionWindow = time.Duration(c.Engine.RetentionDays) * 24 * time.Hour
	}
	if c.Engine.CorrelationWindowDays > 0 {
		cfg.CorrelationWindow = time.Duration(c.Engine.CorrelationWindowDays) * 24 * time.Hour
	}

	return cfg
}
