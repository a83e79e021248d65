package engine

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Paintersrp/tripwire/internal/child"
	"github.com/Paintersrp/tripwire/internal/pattern"
)

// Report is the synthesized result of one observed invocation. It is built
// exactly once, after the child's terminal state is confirmed.
type Report struct {
	Argv     []string
	PID      int
	Outcome  Outcome
	Duration time.Duration

	// ExitCode is the child's own code; meaningful for the natural
	// outcomes only.
	ExitCode int

	Detections []pattern.Detection
	FirstFatal *pattern.Detection

	TerminationErr  *child.TerminationFailure
	ExpectedNonzero bool
	LogPath         string
}

// Summary writes the human-readable closing report: every recorded
// detection, then a single final status line.
func (rep *Report) Summary(w io.Writer) {
	if len(rep.Detections) > 0 {
		fmt.Fprintf(w, "[tripwire] %d detection(s):\n", len(rep.Detections))
		for _, det := range rep.Detections {
			fmt.Fprintf(w, "[tripwire]   %-7s %s (%s, set %s): %s\n",
				det.Severity, det.Rule, det.Source, det.Set, det.Line)
		}
	} else {
		fmt.Fprintln(w, "[tripwire] no detections")
	}

	var detail string
	switch rep.Outcome {
	case OutcomeSuccess:
		detail = "command completed successfully"
	case OutcomeFailure:
		detail = fmt.Sprintf("command exited with code %d", rep.ExitCode)
		if rep.ExpectedNonzero {
			detail += " (expected for this command type)"
		}
	case OutcomeDetected:
		detail = fmt.Sprintf("terminated on fatal pattern %q (%s)", rep.FirstFatal.Rule, rep.FirstFatal.Source)
	case OutcomeTimeout:
		detail = "wall-clock timeout reached with no matching output"
	case OutcomeTerminationFailure:
		detail = rep.TerminationErr.Error()
	}

	fmt.Fprintf(w, "[tripwire] outcome: %s: %s (%s, pid %d, %s)\n",
		rep.Outcome, detail, strings.Join(rep.Argv, " "), rep.PID, rep.Duration.Round(time.Millisecond))
	if rep.LogPath != "" {
		fmt.Fprintf(w, "[tripwire] run log: %s\n", rep.LogPath)
	}
}
