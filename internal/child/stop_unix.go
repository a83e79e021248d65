//go:build !windows

package child

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

// Terminate drives the child's process group to a terminal state. It sends
// SIGTERM to the group, waits up to grace for a clean exit, escalates to
// SIGKILL, and finally reaps within reap. Each phase fires at most once per
// child regardless of concurrent callers. A group that cannot be confirmed
// gone inside the reap window yields a *TerminationFailure rather than
// blocking.
func (h *Handle) Terminate(ctx context.Context, grace, reap time.Duration, onPhase func(phase string)) error {
	if h.cmd.Process == nil {
		return nil
	}
	pid := h.cmd.Process.Pid

	// Graceful phase first.
	h.guard.graceful.Do(func() {
		if onPhase != nil {
			onPhase(PhaseGraceful)
		}
		_ = signalGroup(pid, syscall.SIGTERM)
	})

	select {
	case <-h.waitDone:
		return h.confirmGroupGone(pid, reap)
	case <-time.After(grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	h.guard.forceful.Do(func() {
		if onPhase != nil {
			onPhase(PhaseForceful)
		}
		_ = signalGroup(pid, syscall.SIGKILL)
	})

	select {
	case <-h.waitDone:
		return h.confirmGroupGone(pid, reap)
	case <-time.After(reap):
		return &TerminationFailure{Survivors: survivors(pid)}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// confirmGroupGone polls for surviving group members after the direct child
// has been reaped. Grandchildren reparented to init can outlive a SIGTERM'd
// leader; they are given the reap window to die before being reported.
func (h *Handle) confirmGroupGone(pid int, reap time.Duration) error {
	deadline := time.Now().Add(reap)
	for {
		left := survivors(pid)
		if len(left) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &TerminationFailure{Survivors: left}
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}
	return nil
}
