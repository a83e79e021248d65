package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Paintersrp/tripwire/internal/child"
	"github.com/Paintersrp/tripwire/internal/metrics"
)

// terminator serializes termination of one child. Any concurrent path may
// call trigger; the sequence runs once and its result is delivered on the
// result channel exactly once.
type terminator struct {
	handle  *child.Handle
	grace   time.Duration
	reap    time.Duration
	notices *Notifier

	armed  atomic.Bool
	result chan error
}

func newTerminator(h *child.Handle, grace, reap time.Duration, notices *Notifier) *terminator {
	return &terminator{
		handle:  h,
		grace:   grace,
		reap:    reap,
		notices: notices,
		result:  make(chan error, 1),
	}
}

// trigger starts the graceful-then-forceful sequence the first time it is
// called and is a no-op afterwards.
func (t *terminator) trigger(reason string) {
	if !t.armed.CompareAndSwap(false, true) {
		return
	}
	t.notices.Noticef("terminating process group %d: %s", t.handle.PID(), reason)
	go func() {
		// Termination is bounded by grace and reap on its own; an external
		// cancellation must not cut it short and leave the group behind.
		t.result <- t.handle.Terminate(context.Background(), t.grace, t.reap, metrics.IncTermination)
	}()
}

func (t *terminator) fired() bool {
	return t.armed.Load()
}
