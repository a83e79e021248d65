package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("TRIPWIRE_TIMEOUT", "90s")
	t.Setenv("TRIPWIRE_GRACE", "1s")
	t.Setenv("TRIPWIRE_RULESETS", "python, pytest")
	t.Setenv("TRIPWIRE_LOG_DIR", "/var/log/tripwire")
	t.Setenv("TRIPWIRE_EXIT_DETECTED", "71")
	t.Setenv("TRIPWIRE_LOG_MAX_FILE_COUNT", "5")

	cfg := FromEnv(Default())
	if cfg.Timeout != 90*time.Second {
		t.Fatalf("timeout = %s", cfg.Timeout)
	}
	if cfg.Grace != time.Second {
		t.Fatalf("grace = %s", cfg.Grace)
	}
	if len(cfg.Rulesets) != 2 || cfg.Rulesets[0] != "python" || cfg.Rulesets[1] != "pytest" {
		t.Fatalf("rulesets = %v", cfg.Rulesets)
	}
	if cfg.LogDir != "/var/log/tripwire" {
		t.Fatalf("log dir = %s", cfg.LogDir)
	}
	if cfg.ExitCodes.Detected != 71 {
		t.Fatalf("detected code = %d", cfg.ExitCodes.Detected)
	}
	if cfg.Retention.MaxFileCount != 5 {
		t.Fatalf("max file count = %d", cfg.Retention.MaxFileCount)
	}
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TRIPWIRE_TIMEOUT", "not-a-duration")
	t.Setenv("TRIPWIRE_EXIT_DETECTED", "seventy")

	cfg := FromEnv(Default())
	defaults := Default()
	if cfg.Timeout != defaults.Timeout || cfg.ExitCodes.Detected != defaults.ExitCodes.Detected {
		t.Fatalf("malformed env values must be ignored, got %+v", cfg)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero grace", func(c *Config) { c.Grace = 0 }},
		{"zero reap", func(c *Config) { c.Reap = 0 }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"zero idle flush", func(c *Config) { c.IdleFlush = 0 }},
		{"exit code out of range", func(c *Config) { c.ExitCodes.Detected = 300 }},
		{"overlapping exit codes", func(c *Config) { c.ExitCodes.Timeout = c.ExitCodes.Detected }},
		{"no rule sets", func(c *Config) { c.Rulesets = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripwire.yaml")
	content := `
timeout: 2m
grace: 10s
rulesets: [python]
logDir: /srv/logs
exitCodes:
  detected: 80
retention:
  maxFileCount: 3
  maxFileAge: 48h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timeout != 2*time.Minute || cfg.Grace != 10*time.Second {
		t.Fatalf("durations not overlaid: %+v", cfg)
	}
	if len(cfg.Rulesets) != 1 || cfg.Rulesets[0] != "python" {
		t.Fatalf("rulesets = %v", cfg.Rulesets)
	}
	if cfg.ExitCodes.Detected != 80 {
		t.Fatalf("detected code = %d", cfg.ExitCodes.Detected)
	}
	// Values the file does not mention keep their defaults.
	if cfg.ExitCodes.Timeout != Default().ExitCodes.Timeout {
		t.Fatalf("timeout code = %d", cfg.ExitCodes.Timeout)
	}
	if cfg.Retention.MaxFileCount != 3 || cfg.Retention.MaxFileAge != 48*time.Hour {
		t.Fatalf("retention = %+v", cfg.Retention)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripwire.yaml")
	if err := os.WriteFile(path, []byte("gracePeriod: 10s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, Default()); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
