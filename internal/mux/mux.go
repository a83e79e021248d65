// Package mux drains a child's stdout and stderr concurrently, tags each
// chunk with its origin and arrival time, mirrors it to a live passthrough
// sink, and reassembles line-oriented events for pattern matching. Each
// stream has an independent reading path so a full pipe buffer on one side
// can never stall draining of the other.
package mux

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// Source identifies the stream an event originated from.
type Source string

const (
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
)

// Event is a single assembled output line. Partial marks lines that were
// flushed before a terminator arrived because the stream went idle; their
// content may be completed by a later event on the same stream.
type Event struct {
	Source  Source
	Time    time.Time
	Line    string
	Partial bool
}

// Mux fans in output from registered streams and delivers assembled lines
// via a bounded channel. Events for a single stream are emitted in arrival
// order; cross-stream ordering is by arrival only.
type Mux struct {
	out  chan Event
	idle time.Duration

	readers sync.WaitGroup

	// Serializes passthrough writes so concurrent chunks from stdout and
	// stderr cannot corrupt each other mid-write.
	passMu sync.Mutex
}

// New constructs a mux whose output channel holds up to size events. Streams
// that stop mid-line are flushed after idle with no terminator seen.
func New(idle time.Duration, size int) *Mux {
	if size <= 0 {
		size = 1
	}
	if idle <= 0 {
		idle = 2 * time.Second
	}
	return &Mux{
		out:  make(chan Event, size),
		idle: idle,
	}
}

// Output exposes the muxed event channel. It is closed by Close once every
// registered stream has been fully drained.
func (m *Mux) Output() <-chan Event {
	return m.out
}

// Add registers a stream. Raw chunks are copied to passthrough immediately
// and unaltered; assembled lines are delivered on the output channel. The
// stream is consumed until the reader returns an error or EOF.
func (m *Mux) Add(r io.Reader, src Source, passthrough io.Writer) {
	chunks := make(chan []byte, 8)
	m.readers.Add(2)
	go m.read(r, passthrough, chunks)
	go m.assemble(src, chunks)
}

// Close waits for all registered streams to drain and closes the output
// channel. Call it from its own goroutine alongside consumption of Output.
func (m *Mux) Close() {
	m.readers.Wait()
	close(m.out)
}

func (m *Mux) read(r io.Reader, passthrough io.Writer, chunks chan<- []byte) {
	defer m.readers.Done()
	defer close(chunks)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if passthrough != nil {
				m.passMu.Lock()
				_, _ = passthrough.Write(buf[:n])
				m.passMu.Unlock()
			}
			chunk := append([]byte(nil), buf[:n]...)
			chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

func (m *Mux) assemble(src Source, chunks <-chan []byte) {
	defer m.readers.Done()
	var pending []byte
	for {
		if len(pending) == 0 {
			chunk, ok := <-chunks
			if !ok {
				return
			}
			pending = m.emitLines(src, append(pending, chunk...))
			continue
		}

		// A partial line is buffered: wait for more bytes, but only up to
		// the idle threshold so a child writing without newlines stays
		// visible to matching.
		idle := time.NewTimer(m.idle)
		select {
		case chunk, ok := <-chunks:
			idle.Stop()
			if !ok {
				m.emit(src, string(pending), true)
				return
			}
			pending = m.emitLines(src, append(pending, chunk...))
		case <-idle.C:
			m.emit(src, string(pending), true)
			pending = nil
		}
	}
}

// emitLines emits every complete line in buf and returns the unterminated
// remainder.
func (m *Mux) emitLines(src Source, buf []byte) []byte {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return buf
		}
		line := buf[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		m.emit(src, string(line), false)
		buf = buf[i+1:]
	}
}

func (m *Mux) emit(src Source, line string, partial bool) {
	m.out <- Event{
		Source:  src,
		Time:    time.Now(),
		Line:    line,
		Partial: partial,
	}
}
