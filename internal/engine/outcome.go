package engine

import (
	"path/filepath"

	"github.com/Paintersrp/tripwire/internal/config"
)

// Outcome is the single terminal state reached by an observed child.
type Outcome string

const (
	OutcomeSuccess            Outcome = "natural-success"
	OutcomeFailure            Outcome = "natural-failure"
	OutcomeDetected           Outcome = "detected-error"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeTerminationFailure Outcome = "termination-failure"
)

// Code maps an outcome onto its caller-visible exit code. The ranges are
// disjoint: 0 for success, the child's own code for an ordinary failure,
// and the reserved codes from configuration for everything the wrapper
// itself decided.
func (rep *Report) Code(codes config.ExitCodes) int {
	switch rep.Outcome {
	case OutcomeSuccess:
		return 0
	case OutcomeFailure:
		return rep.ExitCode
	case OutcomeDetected:
		return codes.Detected
	case OutcomeTimeout:
		return codes.Timeout
	default:
		return codes.WrapperFailure
	}
}

// expectedNonzero reports whether the command conventionally exits nonzero
// without that meaning failure, such as grep with no matches. The exit code
// still passes through unchanged; only the summary wording softens.
var expectedNonzeroCommands = map[string]struct{}{
	"grep": {},
	"diff": {},
	"test": {},
	"[":    {},
	"cmp":  {},
}

func expectedNonzero(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	_, ok := expectedNonzeroCommands[filepath.Base(argv[0])]
	return ok
}
