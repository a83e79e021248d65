// Package logsink persists a structured copy of everything the observed
// child wrote, one JSON record per assembled line, so a terminated run can
// be inspected after its buffered output is gone.
package logsink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/tripwire/internal/mux"
)

const filePrefix = "tripwire-"

// Record is the JSON shape written per output line.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Source    string    `json:"source"`
	Message   string    `json:"msg"`
	Partial   bool      `json:"partial,omitempty"`
}

// Sink appends records to a timestamped file in the log directory.
type Sink struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// Option adjusts retention applied to the log directory when a sink opens.
type Option func(*options)

type options struct {
	maxFileAge   time.Duration
	maxFileCount int
	maxTotalSize int64
	now          func() time.Time
}

// WithMaxFileAge removes run logs older than age.
func WithMaxFileAge(age time.Duration) Option {
	return func(o *options) { o.maxFileAge = age }
}

// WithMaxFileCount keeps at most count run logs.
func WithMaxFileCount(count int) Option {
	return func(o *options) { o.maxFileCount = count }
}

// WithMaxTotalSize keeps the directory's run logs under size bytes.
func WithMaxTotalSize(size int64) Option {
	return func(o *options) { o.maxTotalSize = size }
}

// Open creates the log directory if needed, trims it per the retention
// options, and opens a fresh timestamped run log.
func Open(dir string, opts ...Option) (*Sink, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := trim(dir, o); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s%s.log", filePrefix, o.now().Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}
	return &Sink{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Path returns the run log location for the final summary.
func (s *Sink) Path() string {
	return s.path
}

// Record appends one output event. Encoding failures are swallowed: the run
// log is an observability aid and must never affect the child's outcome.
func (s *Sink) Record(ev mux.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(Record{
		Timestamp: ev.Time,
		Source:    string(ev.Source),
		Message:   ev.Line,
		Partial:   ev.Partial,
	})
}

// Close flushes and closes the run log.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

type logFile struct {
	path string
	mod  time.Time
	size int64
}

func trim(dir string, o options) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan log directory: %w", err)
	}
	var files []logFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{
			path: filepath.Join(dir, entry.Name()),
			mod:  info.ModTime(),
			size: info.Size(),
		})
	}
	// Newest first so retention always favors recent runs.
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	var total int64
	for i, file := range files {
		drop := false
		if o.maxFileAge > 0 && o.now().Sub(file.mod) > o.maxFileAge {
			drop = true
		}
		if o.maxFileCount > 0 && i >= o.maxFileCount {
			drop = true
		}
		total += file.size
		if o.maxTotalSize > 0 && total > o.maxTotalSize {
			drop = true
		}
		if drop {
			_ = os.Remove(file.path)
		}
	}
	return nil
}
