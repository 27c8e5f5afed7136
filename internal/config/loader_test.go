package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// setupTestHome creates a temporary home directory for testing.
// Returns the home dir path and a cleanup function.
func setupTestHome(t *testing.T) (string, func()) {
	t.Helper()

	tmpHome := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)

	cleanup := func() {
		if originalHome != "" {
			os.Setenv("HOME", originalHome)
		} else {
			os.Unsetenv("HOME")
		}
	}

	return tmpHome, cleanup
}

// writeTestConfig writes content into the allowed config location with
// the given permissions and returns the file path.
func writeTestConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()

	configDir := filepath.Join(home, ".config", "patternd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

// TestLoadWithFile_ValidYAML tests loading configuration from a valid YAML file.
func TestLoadWithFile_ValidYAML(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `store:
  path: /tmp/patternd-test-db

log:
  level: debug
  format: console

engine:
  auto_apply_threshold: 0.95
  retention_days: 30
`, 0600)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Store.Path != "/tmp/patternd-test-db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "/tmp/patternd-test-db")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "console")
	}
	if cfg.Engine.AutoApplyThreshold != 0.95 {
		t.Errorf("Engine.AutoApplyThreshold = %v, want 0.95", cfg.Engine.AutoApplyThreshold)
	}
	if cfg.Engine.RetentionDays != 30 {
		t.Errorf("Engine.RetentionDays = %d, want 30", cfg.Engine.RetentionDays)
	}

	// Defaults fill the rest
	if cfg.Engine.SuggestThreshold != 0.7 {
		t.Errorf("Engine.SuggestThreshold = %v, want default 0.7", cfg.Engine.SuggestThreshold)
	}
}

// TestLoadWithFile_EnvironmentOverride tests that environment variables override YAML.
func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `store:
  path: /tmp/yaml-db

log:
  level: info
`, 0600)

	os.Setenv("PATTERND_STORE_PATH", "/tmp/env-db")
	os.Setenv("PATTERND_LOG_LEVEL", "warn")
	defer os.Unsetenv("PATTERND_STORE_PATH")
	defer os.Unsetenv("PATTERND_LOG_LEVEL")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Store.Path != "/tmp/env-db" {
		t.Errorf("Store.Path = %q, want %q (from env override)", cfg.Store.Path, "/tmp/env-db")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q (from env override)", cfg.Log.Level, "warn")
	}
}

// TestLoadWithFile_MissingFile tests handling of missing config file.
func TestLoadWithFile_MissingFile(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := filepath.Join(home, ".config", "patternd", "config.yaml")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() should not error on missing file, got: %v", err)
	}

	// Defaults apply
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
	if cfg.Store.Path == "" {
		t.Error("Store.Path should default under the home directory")
	}
}

// TestLoadWithFile_InvalidYAML tests handling of malformed YAML.
func TestLoadWithFile_InvalidYAML(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `store:
  path: /tmp/db
  invalid syntax here
`, 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Error("LoadWithFile() should error on invalid YAML, got nil")
	}
}

// TestLoadWithFile_Validation tests configuration validation.
func TestLoadWithFile_Validation(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `store:
  path: /tmp/db

log:
  level: loud
`, 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Error("LoadWithFile() should error on invalid log level, got nil")
	}
}

// TestLoadWithFile_PathTraversal tests path traversal attack prevention.
func TestLoadWithFile_PathTraversal(t *testing.T) {
	_, cleanup := setupTestHome(t)
	defer cleanup()

	_, err := LoadWithFile("../../../../etc/passwd")
	if err == nil {
		t.Error("Expected error for path traversal, got nil")
	}
	if !strings.Contains(err.Error(), "must be in ~/.config/patternd/ or /etc/patternd/") {
		t.Errorf("Expected path validation error, got: %v", err)
	}
}

// TestLoadWithFile_InsecurePermissions tests file permission enforcement.
func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `store:
  path: /tmp/db
`, 0644)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Error("Expected error for insecure permissions, got nil")
	}
	if !strings.Contains(err.Error(), "insecure") && !strings.Contains(err.Error(), "permissions") {
		t.Errorf("Expected 'insecure permissions' error, got: %v", err)
	}
}

// TestLoadWithFile_FileTooLarge tests file size limit enforcement.
func TestLoadWithFile_FileTooLarge(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	largeContent := bytes.Repeat([]byte("# comment line\n"), 150000)
	configPath := writeTestConfig(t, home, string(largeContent), 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Error("Expected error for large file, got nil")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected 'too large' error, got: %v", err)
	}
}
