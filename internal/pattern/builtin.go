package pattern

import (
	"fmt"
	"sort"
)

// Builtin rule sets cover the invocation contexts the wrapper is commonly
// put in front of: interpreter runs, test runners, build tools, and plain
// shell commands. Custom sets loaded from files compose freely with them.
var builtins = map[string]*Set{
	"generic": {
		Name: "generic",
		Rules: []Rule{
			{Label: "generic-error", Pattern: `(?i)\berror\b`, Severity: SeverityFatal},
			{Label: "generic-fatal", Pattern: `(?i)\bfatal\b`, Severity: SeverityFatal},
			{Label: "generic-critical", Pattern: `\b(CRITICAL|SEVERE)\b`, Severity: SeverityFatal},
			{Label: "generic-aborted", Pattern: `(?i)\b(aborted|killed)\b`, Severity: SeverityFatal},
			{Label: "generic-warning", Pattern: `(?i)\bwarning\b`, Severity: SeverityWarning},
		},
		Excludes: defaultExcludes,
	},
	"python": {
		Name: "python",
		Rules: []Rule{
			{Label: "python-traceback", Pattern: `Traceback \(most recent call last\)`, Severity: SeverityFatal},
			{Label: "python-exception", Pattern: `^\s*(\w+\.)*\w*(Error|Exception|Interrupt|Exit):`, Severity: SeverityFatal},
			{Label: "python-syntax", Pattern: `\b(SyntaxError|IndentationError)\b`, Severity: SeverityFatal},
			{Label: "python-segfault", Pattern: `Segmentation fault|core dumped`, Severity: SeverityFatal},
			{Label: "python-deprecation", Pattern: `\b(Deprecation|PendingDeprecation|Future)Warning\b`, Severity: SeverityWarning},
		},
		Excludes: defaultExcludes,
	},
	"pytest": {
		Name: "pytest",
		Rules: []Rule{
			{Label: "pytest-failed", Pattern: `^FAILED\b`, Severity: SeverityFatal},
			{Label: "pytest-summary-failed", Pattern: `\b\d+ (failed|errors?)\b`, Severity: SeverityFatal},
			{Label: "pytest-internal", Pattern: `INTERNALERROR|pytest\.UsageError`, Severity: SeverityFatal},
			{Label: "pytest-assertion", Pattern: `\bAssertionError\b`, Severity: SeverityFatal},
			{Label: "pytest-collect-warning", Pattern: `no tests (collected|ran)`, Severity: SeverityWarning},
		},
		Excludes: defaultExcludes,
	},
	"build": {
		Name: "build",
		Rules: []Rule{
			{Label: "build-failed", Pattern: `(?i)\b(build|compilation) (failed|error)\b`, Severity: SeverityFatal},
			{Label: "build-make", Pattern: `^make(\[\d+\])?: \*\*\*`, Severity: SeverityFatal},
			{Label: "build-linker", Pattern: `undefined reference to|cannot find -l`, Severity: SeverityFatal},
			{Label: "build-warning", Pattern: `(?i)^.*:\d+(:\d+)?: warning:`, Severity: SeverityWarning},
		},
		Excludes: defaultExcludes,
	},
	"shell": {
		Name: "shell",
		Rules: []Rule{
			{Label: "shell-not-found", Pattern: `command not found`, Severity: SeverityFatal},
			{Label: "shell-permission", Pattern: `Permission denied`, Severity: SeverityFatal},
			{Label: "shell-missing-file", Pattern: `No such file or directory`, Severity: SeverityFatal},
			{Label: "shell-cannot", Pattern: `^(Cannot|Unable to|Failed to)\b`, Severity: SeverityFatal},
		},
		Excludes: defaultExcludes,
	},
	"database": {
		Name: "database",
		Rules: []Rule{
			{Label: "db-operational", Pattern: `\b(Operational|Integrity|Database|Programming|Interface|Internal)Error\b`, Severity: SeverityFatal},
			{Label: "db-schema", Pattern: `no such table|has no column|invalid table`, Severity: SeverityFatal},
			{Label: "db-locked", Pattern: `(?i)database.*(locked|corrupt)`, Severity: SeverityFatal},
		},
		Excludes: defaultExcludes,
	},
	"network": {
		Name: "network",
		Rules: []Rule{
			{Label: "net-connection", Pattern: `Connection (refused|reset|timed? ?out)`, Severity: SeverityFatal},
			{Label: "net-exception", Pattern: `\b(Connection|Timeout|HTTP|URL)Error\b`, Severity: SeverityFatal},
			{Label: "net-tls", Pattern: `(?i)\b(SSL|TLS|certificate) (error|verification failed)\b`, Severity: SeverityFatal},
		},
		Excludes: defaultExcludes,
	},
	"system": {
		Name: "system",
		Rules: []Rule{
			{Label: "sys-segfault", Pattern: `Segmentation fault|Bus error|Illegal instruction`, Severity: SeverityFatal},
			{Label: "sys-oom", Pattern: `(?i)out of memory|memory allocation failed`, Severity: SeverityFatal},
			{Label: "sys-panic", Pattern: `^panic:|^fatal error:`, Severity: SeverityFatal},
			{Label: "sys-stack", Pattern: `(?i)stack overflow`, Severity: SeverityFatal},
		},
		Excludes: defaultExcludes,
	},
}

// defaultExcludes suppress lines that mention error words without being
// errors: zero-count summaries, prose about error handling, and the
// wrapper's own notices.
var defaultExcludes = []string{
	`(?i)\bno errors?\b`,
	`(?i)\b(0|zero) (errors?|failed|failures?|warnings?)\b`,
	`(?i)\berrors?: 0\b`,
	`(?i)error (handling|recovery|detection|patterns?)`,
	`^\s*(#|//)`,
	`\[tripwire\]`,
}

// Builtin returns the named built-in rule set.
func Builtin(name string) (*Set, error) {
	set, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule set %q (known: %v)", name, BuiltinNames())
	}
	return set, nil
}

// BuiltinNames lists the built-in set names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
