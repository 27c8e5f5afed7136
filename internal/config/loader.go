package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces the environment variables patternd reads.
	envPrefix = "PATTERND_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PATTERND_STORE_PATH, PATTERND_LOG_LEVEL, etc.)
//  2. YAML config file (~/.config/patternd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path ~/.config/patternd/config.yaml. A missing file is not an
// error; defaults and environment variables still apply.
//
// # Security Considerations
//
// File Permissions: the configuration file must have 0600 permissions
// (owner read/write only). Files with weaker permissions are rejected.
//
// Path Validation: only configuration files in allowed directories can be
// loaded:
//   - ~/.config/patternd/ (user's config directory)
//   - /etc/patternd/ (system-wide config directory)
//
// Paths outside these directories are rejected to prevent path traversal.
//
// File Size Limit: files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Environment variables carry the PATTERND_ prefix; the first underscore
// after the prefix separates the section from the field name:
//
//	PATTERND_STORE_PATH        -> store.path
//	PATTERND_LOG_LEVEL         -> log.level
//	PATTERND_ENGINE_RETENTION_DAYS -> engine.retention_days
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "patternd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between the stat and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. The first underscore after the
	// prefix splits section from field; the field keeps its underscores.
	//
	//	PATTERND_STORE_PATH  -> store.path
	//	PATTERND_ENGINE_AUTO_APPLY_THRESHOLD -> engine.auto_apply_threshold
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the patternd config directory if it doesn't
// exist, with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "patternd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories. The check
// runs even if the file doesn't exist.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories.
	// If evaluation fails the path may simply not exist yet; validate the
	// absolute path instead.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "patternd"),
		"/etc/patternd",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/patternd/ or /etc/patternd/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size using
// FileInfo from an already-opened descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	// Permission model differs on Windows; skip the mode check there.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" && !cfg.Store.InMemory {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Store.Path = filepath.Join(home, ".local", "share", "patternd", "db")
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Engine.AutoApplyThreshold == 0 {
		cfg.Engine.AutoApplyThreshold = 0.9
	}
	if cfg.Engine.SuggestThreshold == 0 {
		cfg.Engine.SuggestThreshold = 0.7
	}
	if cfg.Engine.RetentionDays == 0 {
		cfg.Engine.RetentionDays = 90
	}
	if cfg.Engine.CorrelationWindowDays == 0 {
		cfg.Engine.CorrelationWindowDays = 30
	}

	if cfg.Maintenance.Interval == 0 {
		cfg.Maintenance.Interval = Duration(24 * time.Hour)
	}
	if cfg.Maintenance.JobTimeout == 0 {
		cfg.Maintenance.JobTimeout = Duration(10 * time.Minute)
	}
}
