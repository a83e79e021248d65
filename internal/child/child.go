package child

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// LaunchError reports that the child never started: missing binary, bad
// working directory, permission problems. It is distinct from every runtime
// outcome because no stream processing has begun when it occurs.
type LaunchError struct {
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Argv[0], e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Spec describes the single child invocation the wrapper observes.
type Spec struct {
	Argv []string
	Dir  string
	// Env is overlaid on the wrapper's own environment.
	Env   map[string]string
	Stdin io.Reader
}

// Handle owns a started child for the lifetime of the invocation.
type Handle struct {
	cmd    *exec.Cmd
	stdout *trackedStream
	stderr *trackedStream

	started  time.Time
	waitDone chan struct{}
	waitErr  error

	guard phaseGuard
}

// trackedStream signals when its underlying pipe has been read to EOF or
// error, so the reaper can tell that no unread tail remains.
type trackedStream struct {
	r    io.Reader
	done chan struct{}
	once sync.Once
}

func newTrackedStream(r io.Reader) *trackedStream {
	return &trackedStream{r: r, done: make(chan struct{})}
}

func (s *trackedStream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil {
		s.once.Do(func() { close(s.done) })
	}
	return n, err
}

// Start launches the child in a new process group with its stdout and
// stderr captured as independent streams. Stdin is wired through untouched.
func Start(spec Spec) (*Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, &LaunchError{Argv: []string{"<none>"}, Err: fmt.Errorf("empty command")}
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Stdin = spec.Stdin

	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Argv: spec.Argv, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Argv: spec.Argv, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Argv: spec.Argv, Err: err}
	}

	h := &Handle{
		cmd:      cmd,
		stdout:   newTrackedStream(stdout),
		stderr:   newTrackedStream(stderr),
		started:  time.Now(),
		waitDone: make(chan struct{}),
	}
	go func() {
		// Wait closes the pipes, so it must not run before both streams
		// have been drained: a fast exit would discard the unread tail.
		<-h.stdout.done
		<-h.stderr.done
		h.waitErr = cmd.Wait()
		close(h.waitDone)
	}()
	return h, nil
}

// Stdout returns the captured stdout stream.
func (h *Handle) Stdout() io.Reader { return h.stdout }

// Stderr returns the captured stderr stream.
func (h *Handle) Stderr() io.Reader { return h.stderr }

// PID returns the child's process id, which is also its group id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Started reports when the child was launched.
func (h *Handle) Started() time.Time { return h.started }

// Done is closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.waitDone }

// ExitCode returns the child's exit code. Valid only after Done is closed.
// A child killed by a signal reports 128 plus the signal number, following
// shell convention.
func (h *Handle) ExitCode() int {
	return exitCode(h.waitErr)
}

// ExitStatus maps an exec Run or Wait error onto the same shell convention
// ExitCode uses, for callers that run a command without a Handle.
func ExitStatus(err error) int {
	return exitCode(err)
}
