package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/Paintersrp/tripwire/internal/pattern"
)

const (
	ansiRed    = "\033[0;31m"
	ansiYellow = "\033[1;33m"
	ansiGreen  = "\033[0;32m"
	ansiReset  = "\033[0m"
)

// Notifier writes the wrapper's own inline notices, kept visually distinct
// from the child's passthrough output by the [tripwire] prefix. Writes are
// serialized so notices from concurrent reader paths stay intact.
type Notifier struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewNotifier writes notices to w, with ANSI color when color is set.
func NewNotifier(w io.Writer, color bool) *Notifier {
	return &Notifier{w: w, color: color}
}

// Detection emits the inline notice for a recorded match.
func (n *Notifier) Detection(det pattern.Detection) {
	tone := ansiYellow
	if det.Severity == pattern.SeverityFatal {
		tone = ansiRed
	}
	n.printf(tone, "%s pattern %q matched on %s: %s", det.Severity, det.Rule, det.Source, det.Line)
}

// Noticef emits a general wrapper notice.
func (n *Notifier) Noticef(format string, args ...any) {
	n.printf(ansiYellow, format, args...)
}

// Successf emits a completion notice.
func (n *Notifier) Successf(format string, args ...any) {
	n.printf(ansiGreen, format, args...)
}

func (n *Notifier) printf(tone, format string, args ...any) {
	if n == nil || n.w == nil {
		return
	}
	prefix := "[tripwire]"
	if n.color {
		prefix = tone + prefix + ansiReset
	}
	n.mu.Lock()
	fmt.Fprintf(n.w, "%s %s\n", prefix, fmt.Sprintf(format, args...))
	n.mu.Unlock()
}
