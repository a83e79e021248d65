package child

import (
	"fmt"
	"strings"
	"sync"
)

// Phases of the termination sequence, recorded for metrics and reporting.
const (
	PhaseGraceful = "graceful"
	PhaseForceful = "forceful"
)

// phaseGuard ensures each termination phase fires at most once per child,
// however many concurrent paths request it.
type phaseGuard struct {
	graceful sync.Once
	forceful sync.Once
}

// Survivor identifies a process-group member still alive after the forceful
// phase and the bounded reap window.
type Survivor struct {
	PID  int
	Name string
}

// TerminationFailure reports that the process group could not be confirmed
// gone. It is surfaced instead of blocking the wrapper indefinitely.
type TerminationFailure struct {
	Survivors []Survivor
}

func (e *TerminationFailure) Error() string {
	if len(e.Survivors) == 0 {
		return "process group could not be confirmed gone"
	}
	names := make([]string, 0, len(e.Survivors))
	for _, s := range e.Survivors {
		names = append(names, fmt.Sprintf("%d(%s)", s.PID, s.Name))
	}
	return "process group not fully terminated, survivors: " + strings.Join(names, ", ")
}
