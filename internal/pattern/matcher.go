package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Matcher evaluates lines against the active rule sets. All fatal rules are
// checked before any warning rule. The first fatal match arms the trip
// channel exactly once; every match, fatal or warning, is appended to the
// detection log.
type Matcher struct {
	fatal    []compiledRule
	warning  []compiledRule
	excludes []*regexp.Regexp
	setOf    map[string]string

	mu         sync.Mutex
	detections []Detection
	first      *Detection

	tripped atomic.Bool
	trip    chan struct{}
	once    sync.Once
}

// NewMatcher compiles the provided sets into a matcher. Set order is
// irrelevant: severity alone decides evaluation priority.
func NewMatcher(sets ...*Set) (*Matcher, error) {
	m := &Matcher{
		trip:  make(chan struct{}),
		setOf: make(map[string]string),
	}
	for _, set := range sets {
		if set == nil {
			continue
		}
		for _, rule := range set.Rules {
			compiled, err := rule.compile()
			if err != nil {
				return nil, fmt.Errorf("set %s: %w", set.Name, err)
			}
			if _, dup := m.setOf[compiled.label]; dup {
				return nil, fmt.Errorf("set %s: duplicate rule label %q", set.Name, compiled.label)
			}
			m.setOf[compiled.label] = set.Name
			switch compiled.severity {
			case SeverityFatal:
				m.fatal = append(m.fatal, compiled)
			case SeverityWarning:
				m.warning = append(m.warning, compiled)
			}
		}
		for _, expr := range set.Excludes {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("set %s: exclude %q: %w", set.Name, expr, err)
			}
			m.excludes = append(m.excludes, re)
		}
	}
	if len(m.fatal)+len(m.warning) == 0 {
		return nil, fmt.Errorf("no rules configured")
	}
	return m, nil
}

// Observe checks one line. It returns the detection recorded for the line,
// if any. A fatal detection closes the Tripped channel the first time only;
// later fatal matches are still recorded but never re-arm termination.
func (m *Matcher) Observe(source, line string, at time.Time) *Detection {
	if line == "" {
		return nil
	}
	for _, ex := range m.excludes {
		if ex.MatchString(line) {
			return nil
		}
	}
	if c := m.match(m.fatal, source, line); c != nil {
		det := m.record(*c, source, line, at)
		if m.tripped.CompareAndSwap(false, true) {
			m.once.Do(func() { close(m.trip) })
		}
		return det
	}
	if c := m.match(m.warning, source, line); c != nil {
		return m.record(*c, source, line, at)
	}
	return nil
}

func (m *Matcher) match(rules []compiledRule, source, line string) *compiledRule {
	for i := range rules {
		if !rules[i].applies(source) {
			continue
		}
		if rules[i].re.MatchString(line) {
			return &rules[i]
		}
	}
	return nil
}

func (m *Matcher) record(c compiledRule, source, line string, at time.Time) *Detection {
	det := Detection{
		Rule:     c.label,
		Set:      m.setOf[c.label],
		Severity: c.severity,
		Line:     line,
		Source:   source,
		Time:     at,
	}
	m.mu.Lock()
	m.detections = append(m.detections, det)
	if c.severity == SeverityFatal && m.first == nil {
		m.first = &m.detections[len(m.detections)-1]
	}
	m.mu.Unlock()
	return &det
}

// Tripped is closed when the first fatal rule matches.
func (m *Matcher) Tripped() <-chan struct{} {
	return m.trip
}

// FirstFatal returns the authoritative fatal detection, or nil.
func (m *Matcher) FirstFatal() *Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.first == nil {
		return nil
	}
	det := *m.first
	return &det
}

// Detections returns a copy of the detection log in arrival order.
func (m *Matcher) Detections() []Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Detection(nil), m.detections...)
}

// Count reports how many detections of the given severity were recorded.
func (m *Matcher) Count(sev Severity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, det := range m.detections {
		if det.Severity == sev {
			n++
		}
	}
	return n
}

// Labels returns the sorted rule labels known to the matcher.
func (m *Matcher) Labels() []string {
	labels := make([]string, 0, len(m.setOf))
	for label := range m.setOf {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
