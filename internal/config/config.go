// Package config resolves wrapper settings once at the invocation boundary.
// Defaults are overridden by TRIPWIRE_* environment variables, which are in
// turn overridden by command-line flags; the core never reads configuration
// after launch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration for YAML and flag-style text parsing.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// ExitCodes maps terminal outcomes onto disjoint caller-visible codes. The
// concrete values are configuration, not constants of the core; the
// defaults follow the GNU timeout convention for timeouts and the
// "wrapper itself failed" convention of code 125.
type ExitCodes struct {
	Detected       int `yaml:"detected"`
	Timeout        int `yaml:"timeout"`
	WrapperFailure int `yaml:"wrapperFailure"`
}

// Retention bounds the run-log directory.
type Retention struct {
	MaxFileAge   time.Duration
	MaxFileCount int
	MaxTotalSize int64
}

// Config carries every knob the wrapper honors for one invocation.
type Config struct {
	// Timeout bounds total wall-clock runtime. Zero means unbounded.
	Timeout time.Duration
	// Grace is the wait between SIGTERM and SIGKILL.
	Grace time.Duration
	// Reap bounds the post-kill wait for the group to be confirmed gone.
	Reap time.Duration
	// IdleFlush bounds how long a partial line may sit unobserved.
	IdleFlush time.Duration

	Rulesets  []string
	RuleFiles []string

	LogDir      string
	Retention   Retention
	MetricsAddr string

	ExitCodes ExitCodes
}

// GuardEnv marks an invocation already running under the wrapper. When it is
// present the wrapper runs the command directly, so nested integrations
// cannot stack detection on top of detection.
const GuardEnv = "TRIPWIRE_ACTIVE"

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Grace:     5 * time.Second,
		Reap:      5 * time.Second,
		IdleFlush: 2 * time.Second,
		Rulesets:  []string{"generic"},
		ExitCodes: ExitCodes{
			Detected:       70,
			Timeout:        124,
			WrapperFailure: 125,
		},
	}
}

// FromEnv overlays TRIPWIRE_* environment variables onto cfg. Malformed
// values are ignored; env configuration is advisory and flags win over it.
func FromEnv(cfg Config) Config {
	if d, ok := envDuration("TRIPWIRE_TIMEOUT"); ok {
		cfg.Timeout = d
	}
	if d, ok := envDuration("TRIPWIRE_GRACE"); ok {
		cfg.Grace = d
	}
	if d, ok := envDuration("TRIPWIRE_REAP"); ok {
		cfg.Reap = d
	}
	if d, ok := envDuration("TRIPWIRE_IDLE_FLUSH"); ok {
		cfg.IdleFlush = d
	}
	if value := os.Getenv("TRIPWIRE_RULESETS"); value != "" {
		var sets []string
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sets = append(sets, name)
			}
		}
		if len(sets) > 0 {
			cfg.Rulesets = sets
		}
	}
	if value := os.Getenv("TRIPWIRE_LOG_DIR"); value != "" {
		cfg.LogDir = value
	}
	if value := os.Getenv("TRIPWIRE_METRICS_ADDR"); value != "" {
		cfg.MetricsAddr = value
	}
	if code, ok := envInt("TRIPWIRE_EXIT_DETECTED"); ok {
		cfg.ExitCodes.Detected = code
	}
	if code, ok := envInt("TRIPWIRE_EXIT_TIMEOUT"); ok {
		cfg.ExitCodes.Timeout = code
	}
	if code, ok := envInt("TRIPWIRE_EXIT_WRAPPER_FAILURE"); ok {
		cfg.ExitCodes.WrapperFailure = code
	}
	if d, ok := envDuration("TRIPWIRE_LOG_MAX_FILE_AGE"); ok {
		cfg.Retention.MaxFileAge = d
	}
	if count, ok := envInt("TRIPWIRE_LOG_MAX_FILE_COUNT"); ok && count > 0 {
		cfg.Retention.MaxFileCount = count
	}
	if value := os.Getenv("TRIPWIRE_LOG_MAX_TOTAL_SIZE"); value != "" {
		if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
			cfg.Retention.MaxTotalSize = size
		}
	}
	return cfg
}

// Validate rejects configurations the core cannot honor.
func (c Config) Validate() error {
	if c.Grace <= 0 {
		return fmt.Errorf("grace period must be positive, got %s", c.Grace)
	}
	if c.Reap <= 0 {
		return fmt.Errorf("reap window must be positive, got %s", c.Reap)
	}
	if c.IdleFlush <= 0 {
		return fmt.Errorf("idle flush threshold must be positive, got %s", c.IdleFlush)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	codes := map[string]int{
		"detected":        c.ExitCodes.Detected,
		"timeout":         c.ExitCodes.Timeout,
		"wrapper-failure": c.ExitCodes.WrapperFailure,
	}
	seen := make(map[int]string, len(codes))
	for name, code := range codes {
		if code <= 0 || code > 255 {
			return fmt.Errorf("%s exit code must be in 1..255, got %d", name, code)
		}
		if prev, dup := seen[code]; dup {
			return fmt.Errorf("%s and %s exit codes overlap on %d", prev, name, code)
		}
		seen[code] = name
	}
	if len(c.Rulesets) == 0 && len(c.RuleFiles) == 0 {
		return fmt.Errorf("at least one rule set is required")
	}
	return nil
}

func envDuration(key string) (time.Duration, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func envInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
