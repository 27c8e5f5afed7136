package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate.
func validConfig() Config {
	return Config{
		Store: StoreConfig{Path: "/tmp/patternd-db"},
		Log:   LogConfig{Level: "info", Format: "json"},
		Engine: EngineConfig{
			AutoApplyThreshold:    0.9,
			SuggestThreshold:      0.7,
			AdvisoryThreshold:     0.0,
			RetentionDays:         90,
			CorrelationWindowDays: 30,
		},
		Maintenance: MaintenanceConfig{
			Interval:   Duration(24 * time.Hour),
			JobTimeout: Duration(10 * time.Minute),
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "in-memory store without path",
			mutate: func(c *Config) { c.Store.Path = ""; c.Store.InMemory = true },
		},
		{
			name:    "persistent store without path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store path required",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Engine.AutoApplyThreshold = 1.5 },
			wantErr: "must be 0.0-1.0",
		},
		{
			name: "inverted thresholds",
			mutate: func(c *Config) {
				c.Engine.AutoApplyThreshold = 0.6
				c.Engine.SuggestThreshold = 0.7
			},
			wantErr: "auto_apply_threshold must be at least suggest_threshold",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Engine.RetentionDays = -1 },
			wantErr: "retention_days cannot be negative",
		},
		{
			name: "maintenance enabled without projects",
			mutate: func(c *Config) {
				c.Maintenance.Enabled = true
				c.Maintenance.Projects = nil
			},
			wantErr: "maintenance requires at least one project",
		},
		{
			name: "maintenance enabled with projects",
			mutate: func(c *Config) {
				c.Maintenance.Enabled = true
				c.Maintenance.Projects = []string{"proj_1"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPatternbankConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.AutoApplyThreshold = 0.95
	cfg.Engine.RetentionDays = 30
	cfg.Engine.CorrelationWindowDays = 14

	ec := cfg.PatternbankConfig()

	if ec.AutoApplyThreshold != 0.95 {
		t.Errorf("AutoApplyThreshold = %v, want 0.95", ec.AutoApplyThreshold)
	}
	if ec.RetentionWindow != 30*24*time.Hour {
		t.Errorf("RetentionWindow = %v, want 720h", ec.RetentionWindow)
	}
	if ec.CorrelationWindow != 14*24*time.Hour {
		t.Errorf("CorrelationWindow = %v, want 336h", ec.CorrelationWindow)
	}

	// Untouched engine defaults survive
	if ec.DecayRate != 0.95 {
		t.Errorf("DecayRate = %v, want engine default 0.95", ec.DecayRate)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("derived engine config should validate, got: %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", d.Duration())
	}

	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("UnmarshalText() should reject negative durations")
	}
	if err := d.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText() should reject unparsable durations")
	}
}
