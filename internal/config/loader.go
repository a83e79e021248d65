package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the optional tripwire.yaml document. Every field is
// optional; absent fields keep their current value.
type fileConfig struct {
	Timeout     Duration       `yaml:"timeout"`
	Grace       Duration       `yaml:"grace"`
	Reap        Duration       `yaml:"reap"`
	IdleFlush   Duration       `yaml:"idleFlush"`
	Rulesets    []string       `yaml:"rulesets"`
	RuleFiles   []string       `yaml:"ruleFiles"`
	LogDir      string         `yaml:"logDir"`
	MetricsAddr string         `yaml:"metricsAddr"`
	ExitCodes   *ExitCodes     `yaml:"exitCodes"`
	Retention   *retentionSpec `yaml:"retention"`
}

type retentionSpec struct {
	MaxFileAge   Duration `yaml:"maxFileAge"`
	MaxFileCount *int     `yaml:"maxFileCount"`
	MaxTotalSize *int64   `yaml:"maxTotalSize"`
}

// Load overlays a YAML configuration file onto cfg.
func Load(path string, cfg Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc fileConfig
	if err := decoder.Decode(&doc); err != nil {
		return cfg, fmt.Errorf("%s: decode: %w", path, err)
	}

	if doc.Timeout.IsSet() {
		cfg.Timeout = doc.Timeout.Duration
	}
	if doc.Grace.IsSet() {
		cfg.Grace = doc.Grace.Duration
	}
	if doc.Reap.IsSet() {
		cfg.Reap = doc.Reap.Duration
	}
	if doc.IdleFlush.IsSet() {
		cfg.IdleFlush = doc.IdleFlush.Duration
	}
	if len(doc.Rulesets) > 0 {
		cfg.Rulesets = append([]string(nil), doc.Rulesets...)
	}
	if len(doc.RuleFiles) > 0 {
		cfg.RuleFiles = append([]string(nil), doc.RuleFiles...)
	}
	if doc.LogDir != "" {
		cfg.LogDir = doc.LogDir
	}
	if doc.MetricsAddr != "" {
		cfg.MetricsAddr = doc.MetricsAddr
	}
	if doc.ExitCodes != nil {
		if doc.ExitCodes.Detected != 0 {
			cfg.ExitCodes.Detected = doc.ExitCodes.Detected
		}
		if doc.ExitCodes.Timeout != 0 {
			cfg.ExitCodes.Timeout = doc.ExitCodes.Timeout
		}
		if doc.ExitCodes.WrapperFailure != 0 {
			cfg.ExitCodes.WrapperFailure = doc.ExitCodes.WrapperFailure
		}
	}
	if doc.Retention != nil {
		if doc.Retention.MaxFileAge.IsSet() {
			cfg.Retention.MaxFileAge = doc.Retention.MaxFileAge.Duration
		}
		if doc.Retention.MaxFileCount != nil && *doc.Retention.MaxFileCount > 0 {
			cfg.Retention.MaxFileCount = *doc.Retention.MaxFileCount
		}
		if doc.Retention.MaxTotalSize != nil && *doc.Retention.MaxTotalSize > 0 {
			cfg.Retention.MaxTotalSize = *doc.Retention.MaxTotalSize
		}
	}
	return cfg, nil
}
