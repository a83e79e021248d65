package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	stdruntime "runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Paintersrp/tripwire/internal/child"
	"github.com/Paintersrp/tripwire/internal/config"
	"github.com/Paintersrp/tripwire/internal/logsink"
	"github.com/Paintersrp/tripwire/internal/pattern"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("runner tests depend on /bin/sh")
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Grace = 500 * time.Millisecond
	cfg.Reap = 3 * time.Second
	cfg.IdleFlush = 200 * time.Millisecond
	return cfg
}

func testSet() *pattern.Set {
	return &pattern.Set{
		Name: "test",
		Rules: []pattern.Rule{
			{Label: "boom", Pattern: `\bboom\b`, Severity: pattern.SeverityFatal},
			{Label: "warn", Pattern: `(?i)\bwarning\b`, Severity: pattern.SeverityWarning},
		},
	}
}

type runResult struct {
	rep    *Report
	err    error
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func run(t *testing.T, ctx context.Context, cfg config.Config, set *pattern.Set, script string) *runResult {
	t.Helper()
	matcher, err := pattern.NewMatcher(set)
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	res := &runResult{}
	runner := &Runner{
		Matcher: matcher,
		Config:  cfg,
		Stdout:  &res.stdout,
		Stderr:  &res.stderr,
		Notices: NewNotifier(io.Discard, false),
	}
	res.rep, res.err = runner.Run(ctx, child.Spec{Argv: []string{"/bin/sh", "-c", script}})
	return res
}

func TestFatalDetectionTerminatesChild(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig()
	start := time.Now()
	res := run(t, context.Background(), cfg, testSet(), "echo 'boom stage failed' >&2; sleep 30")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("detection-triggered termination took %s", elapsed)
	}

	rep := res.rep
	if rep.Outcome != OutcomeDetected {
		t.Fatalf("outcome = %s, want %s", rep.Outcome, OutcomeDetected)
	}
	if rep.FirstFatal == nil || rep.FirstFatal.Rule != "boom" || rep.FirstFatal.Source != "stderr" {
		t.Fatalf("first fatal = %+v", rep.FirstFatal)
	}
	if code := rep.Code(cfg.ExitCodes); code != cfg.ExitCodes.Detected {
		t.Fatalf("exit code = %d, want %d", code, cfg.ExitCodes.Detected)
	}
}

func TestNaturalFailurePassesExitCodeThrough(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig()
	res := run(t, context.Background(), cfg, testSet(), "exit 3")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	rep := res.rep
	if rep.Outcome != OutcomeFailure || rep.ExitCode != 3 {
		t.Fatalf("outcome = %s code %d, want %s code 3", rep.Outcome, rep.ExitCode, OutcomeFailure)
	}
	if code := rep.Code(cfg.ExitCodes); code != 3 {
		t.Fatalf("caller-visible code = %d, want 3", code)
	}
	if len(rep.Detections) != 0 {
		t.Fatalf("expected no detections, got %+v", rep.Detections)
	}
}

func TestNaturalSuccessWithPassthrough(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig()
	res := run(t, context.Background(), cfg, testSet(), "echo all good")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if res.rep.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s", res.rep.Outcome)
	}
	if got := res.stdout.String(); got != "all good\n" {
		t.Fatalf("passthrough = %q", got)
	}
	if code := res.rep.Code(cfg.ExitCodes); code != 0 {
		t.Fatalf("caller-visible code = %d", code)
	}
}

func TestWarningsNeverTerminate(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig()
	res := run(t, context.Background(), cfg, testSet(),
		"echo 'warning: fallback codec'; echo 'WARNING: low disk' >&2; exit 0")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	rep := res.rep
	if rep.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success despite warnings", rep.Outcome)
	}
	if got := len(rep.Detections); got != 2 {
		t.Fatalf("expected 2 warning detections, got %d", got)
	}
	for _, det := range rep.Detections {
		if det.Severity != pattern.SeverityWarning {
			t.Fatalf("unexpected severity %s", det.Severity)
		}
	}
}

func TestTimeoutTerminatesSilentChild(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig()
	cfg.Timeout = 300 * time.Millisecond
	start := time.Now()
	res := run(t, context.Background(), cfg, testSet(), "sleep 30")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout termination took %s", elapsed)
	}
	rep := res.rep
	if rep.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s, want %s", rep.Outcome, OutcomeTimeout)
	}
	if code := rep.Code(cfg.ExitCodes); code != cfg.ExitCodes.Timeout {
		t.Fatalf("exit code = %d, want %d", code, cfg.ExitCodes.Timeout)
	}
}

func TestRepeatedFatalLinesTriggerOneTermination(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig()
	res := run(t, context.Background(), cfg, testSet(),
		"i=0; while [ $i -lt 50 ]; do echo boom; i=$((i+1)); done; sleep 30")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	rep := res.rep
	if rep.Outcome != OutcomeDetected {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if rep.FirstFatal == nil {
		t.Fatal("missing first fatal detection")
	}
	// Every observed repeat is recorded, none retracted.
	if len(rep.Detections) == 0 {
		t.Fatal("expected recorded detections")
	}
}

func TestInterpreterTracebackScenario(t *testing.T) {
	skipOnWindows(t)

	set, err := pattern.Builtin("python")
	if err != nil {
		t.Fatalf("builtin python: %v", err)
	}
	cfg := testConfig()
	res := run(t, context.Background(), cfg, set,
		`printf 'Traceback (most recent call last):\n  File "job.py", line 1\nValueError: bad value\n' >&2; sleep 30`)
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	rep := res.rep
	if rep.Outcome != OutcomeDetected {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if rep.FirstFatal.Rule != "python-traceback" || rep.FirstFatal.Source != "stderr" {
		t.Fatalf("first fatal = %+v", rep.FirstFatal)
	}
	if code := rep.Code(cfg.ExitCodes); code != cfg.ExitCodes.Detected {
		t.Fatalf("exit code = %d", code)
	}

	var summary bytes.Buffer
	rep.Summary(&summary)
	text := summary.String()
	if !strings.Contains(text, "python-traceback") || !strings.Contains(text, "stderr") {
		t.Fatalf("summary does not name the match: %s", text)
	}
}

func TestLaunchErrorIsDistinctFromOutcomes(t *testing.T) {
	matcher, err := pattern.NewMatcher(testSet())
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	runner := &Runner{
		Matcher: matcher,
		Config:  testConfig(),
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		Notices: NewNotifier(io.Discard, false),
	}
	rep, err := runner.Run(context.Background(), child.Spec{
		Argv: []string{"/nonexistent/definitely-missing-binary"},
	})
	var launchErr *child.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if rep != nil {
		t.Fatalf("no report must exist for a failed launch, got %+v", rep)
	}
}

func TestInterruptDrivesChildToTerminalState(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	cfg := testConfig()
	start := time.Now()
	res := run(t, ctx, cfg, testSet(), "sleep 30")
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("interrupt handling took %s", elapsed)
	}
	rep := res.rep
	if rep.Outcome != OutcomeFailure || rep.ExitCode == 0 {
		t.Fatalf("outcome = %s code %d, want nonzero natural failure", rep.Outcome, rep.ExitCode)
	}
}

func TestRunLogRecordsOutput(t *testing.T) {
	skipOnWindows(t)

	sink, err := logsink.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	matcher, err := pattern.NewMatcher(testSet())
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	runner := &Runner{
		Matcher: matcher,
		Config:  testConfig(),
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		Notices: NewNotifier(io.Discard, false),
		Sink:    sink,
	}
	rep, err := runner.Run(context.Background(), child.Spec{
		Argv: []string{"/bin/sh", "-c", "echo persisted line"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.LogPath == "" {
		t.Fatal("report does not name the run log")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	data, err := os.ReadFile(rep.LogPath)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), "persisted line") {
		t.Fatalf("run log missing output: %s", data)
	}
}

func TestTerminatorTriggersExactlyOnce(t *testing.T) {
	skipOnWindows(t)

	h, err := child.Start(child.Spec{Argv: []string{"/bin/sh", "-c", "sleep 30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	go func() { _, _ = io.Copy(io.Discard, h.Stdout()) }()
	go func() { _, _ = io.Copy(io.Discard, h.Stderr()) }()

	term := newTerminator(h, 500*time.Millisecond, 3*time.Second, NewNotifier(io.Discard, false))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			term.trigger("concurrent trigger")
		}()
	}
	wg.Wait()

	select {
	case err := <-term.result:
		if err != nil {
			t.Fatalf("terminate: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("termination result never arrived")
	}

	// A second result would mean the sequence ran more than once.
	select {
	case err := <-term.result:
		t.Fatalf("unexpected second termination result: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}
