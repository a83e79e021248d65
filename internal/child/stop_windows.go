//go:build windows

package child

import (
	"context"
	"os"
	"time"
)

// Terminate on Windows offers best-effort semantics: without job objects the
// wrapper can only interrupt and then kill the direct child. Descendants it
// spawned may remain running and must be cleaned up by the caller.
func (h *Handle) Terminate(ctx context.Context, grace, reap time.Duration, onPhase func(phase string)) error {
	if h.cmd.Process == nil {
		return nil
	}

	h.guard.graceful.Do(func() {
		if onPhase != nil {
			onPhase(PhaseGraceful)
		}
		_ = h.cmd.Process.Signal(os.Interrupt)
	})

	select {
	case <-h.waitDone:
		return nil
	case <-time.After(grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	h.guard.forceful.Do(func() {
		if onPhase != nil {
			onPhase(PhaseForceful)
		}
		_ = h.cmd.Process.Kill()
	})

	select {
	case <-h.waitDone:
		return nil
	case <-time.After(reap):
		return &TerminationFailure{}
	case <-ctx.Done():
		return ctx.Err()
	}
}
