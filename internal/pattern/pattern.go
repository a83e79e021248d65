// Package pattern classifies child output lines against named rule sets.
// Rules carry a severity: fatal rules request immediate termination of the
// observed child, warning rules are recorded for the final report only.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Severity orders how a matched rule affects the invocation.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// Rule is a single named matcher applied to each output line.
type Rule struct {
	Label    string   `yaml:"label"`
	Pattern  string   `yaml:"pattern"`
	Severity Severity `yaml:"severity"`
	// Streams optionally restricts the rule to the named sources
	// ("stdout", "stderr"). Empty means both.
	Streams []string `yaml:"streams"`
}

// Set groups rules under a name selectable per invocation context. Excludes
// suppress matching entirely for lines that hit one of them, guarding
// against false positives such as "0 errors" summaries.
type Set struct {
	Name     string   `yaml:"name"`
	Rules    []Rule   `yaml:"rules"`
	Excludes []string `yaml:"excludes"`
}

type compiledRule struct {
	label    string
	severity Severity
	re       *regexp.Regexp
	streams  map[string]struct{}
}

func (r Rule) compile() (compiledRule, error) {
	if r.Label == "" {
		return compiledRule{}, fmt.Errorf("rule %q: label is required", r.Pattern)
	}
	sev := r.Severity
	if sev == "" {
		sev = SeverityFatal
	}
	if sev != SeverityFatal && sev != SeverityWarning {
		return compiledRule{}, fmt.Errorf("rule %s: unknown severity %q", r.Label, r.Severity)
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %s: %w", r.Label, err)
	}
	var streams map[string]struct{}
	if len(r.Streams) > 0 {
		streams = make(map[string]struct{}, len(r.Streams))
		for _, s := range r.Streams {
			lower := strings.ToLower(strings.TrimSpace(s))
			if lower == "" {
				continue
			}
			if lower != "stdout" && lower != "stderr" {
				return compiledRule{}, fmt.Errorf("rule %s: unknown stream %q", r.Label, s)
			}
			streams[lower] = struct{}{}
		}
	}
	return compiledRule{label: r.Label, severity: sev, re: re, streams: streams}, nil
}

func (c compiledRule) applies(source string) bool {
	if len(c.streams) == 0 {
		return true
	}
	_, ok := c.streams[strings.ToLower(source)]
	return ok
}

// Detection records a single rule match against an output line. Detections
// are append-only and never retracted.
type Detection struct {
	Rule     string
	Set      string
	Severity Severity
	Line     string
	Source   string
	Time     time.Time
}
