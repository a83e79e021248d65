// Package engine wires the launcher, stream multiplexer, pattern matcher,
// and termination controller into a single observed invocation and
// synthesizes its terminal outcome.
package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Paintersrp/tripwire/internal/child"
	"github.com/Paintersrp/tripwire/internal/config"
	"github.com/Paintersrp/tripwire/internal/logsink"
	"github.com/Paintersrp/tripwire/internal/metrics"
	"github.com/Paintersrp/tripwire/internal/mux"
	"github.com/Paintersrp/tripwire/internal/pattern"
)

// Runner executes one child under observation. Zero or one Run call per
// Runner; the matcher's single-fire state is scoped to the child.
type Runner struct {
	Matcher *pattern.Matcher
	Config  config.Config

	// Stdout and Stderr receive the live passthrough copy of the child's
	// streams, unaltered.
	Stdout io.Writer
	Stderr io.Writer

	// Notices receives the wrapper's own inline detection notices. A nil
	// Notifier drops them.
	Notices *Notifier

	// Sink, when set, persists every assembled line.
	Sink *logsink.Sink
}

// Run launches the child described by spec and observes it to a terminal
// state. A *child.LaunchError return means the child never started and no
// Report exists. Otherwise the Report carries exactly one Outcome, reached
// within the configured timeout, grace, and reap bounds.
func (r *Runner) Run(ctx context.Context, spec child.Spec) (*Report, error) {
	cfg := r.Config

	h, err := child.Start(spec)
	if err != nil {
		return nil, err
	}

	m := mux.New(cfg.IdleFlush, 256)
	m.Add(h.Stdout(), mux.SourceStdout, r.Stdout)
	m.Add(h.Stderr(), mux.SourceStderr, r.Stderr)
	go m.Close()

	term := newTerminator(h, cfg.Grace, cfg.Reap, r.Notices)

	var timeoutCh <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var (
		timedOut bool
		termErr  error
		termDone bool
	)

	events := m.Output()
	termResult := term.result
	ctxDone := ctx.Done()

	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if r.Sink != nil {
				r.Sink.Record(ev)
			}
			det := r.Matcher.Observe(string(ev.Source), ev.Line, ev.Time)
			if det == nil {
				continue
			}
			metrics.IncDetection(string(det.Severity))
			r.Notices.Detection(*det)
			if det.Severity == pattern.SeverityFatal {
				term.trigger("fatal pattern matched")
			}
		case err := <-termResult:
			termErr = err
			termDone = true
			termResult = nil
			if err != nil {
				// Survivors may hold the pipes open; stop waiting on them.
				events = nil
			}
		case <-timeoutCh:
			timedOut = true
			timeoutCh = nil
			r.Notices.Noticef("timeout after %s", cfg.Timeout)
			term.trigger("timeout")
		case <-ctxDone:
			ctxDone = nil
			term.trigger("interrupted")
		}
	}

	// Streams are drained; confirm the child's terminal state before any
	// summary is emitted.
	if term.fired() {
		if !termDone {
			termErr = <-term.result
		}
	} else {
		select {
		case <-h.Done():
		case <-timeoutCh:
			timedOut = true
			term.trigger("timeout")
			termErr = <-term.result
		case <-ctxDone:
			term.trigger("interrupted")
			termErr = <-term.result
		}
	}

	rep := &Report{
		Argv:            spec.Argv,
		PID:             h.PID(),
		Duration:        time.Since(h.Started()),
		Detections:      r.Matcher.Detections(),
		FirstFatal:      r.Matcher.FirstFatal(),
		ExpectedNonzero: expectedNonzero(spec.Argv),
	}
	if r.Sink != nil {
		rep.LogPath = r.Sink.Path()
	}

	var failure *child.TerminationFailure
	switch {
	case errors.As(termErr, &failure):
		rep.Outcome = OutcomeTerminationFailure
		rep.TerminationErr = failure
	case rep.FirstFatal != nil:
		rep.Outcome = OutcomeDetected
	case timedOut:
		rep.Outcome = OutcomeTimeout
	default:
		rep.ExitCode = h.ExitCode()
		if rep.ExitCode == 0 {
			rep.Outcome = OutcomeSuccess
		} else {
			rep.Outcome = OutcomeFailure
		}
	}

	metrics.ObserveRun(string(rep.Outcome), rep.Duration)
	return rep, nil
}
