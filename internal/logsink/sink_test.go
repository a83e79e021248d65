package logsink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Paintersrp/tripwire/internal/mux"
)

func TestSinkWritesJSONRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Now()
	sink.Record(mux.Event{Source: mux.SourceStdout, Time: now, Line: "hello"})
	sink.Record(mux.Event{Source: mux.SourceStderr, Time: now, Line: "stuck", Partial: true})
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(sink.Path())
	if err != nil {
		t.Fatalf("open run log: %v", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Source != "stdout" || records[0].Message != "hello" || records[0].Partial {
		t.Fatalf("record 0 = %+v", records[0])
	}
	if records[1].Source != "stderr" || !records[1].Partial {
		t.Fatalf("record 1 = %+v", records[1])
	}
}

func TestOpenTrimsByCount(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, filePrefix+time.Now().Add(time.Duration(-i)*time.Hour).Format("20060102-150405.000")+".log")
		if err := os.WriteFile(name, []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("seed log: %v", err)
		}
		mod := time.Now().Add(time.Duration(-i) * time.Hour)
		if err := os.Chtimes(name, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	sink, err := Open(dir, WithMaxFileCount(2))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	// Two retained old logs plus the freshly opened one.
	if len(entries) != 3 {
		t.Fatalf("expected 3 files after trim, got %d", len(entries))
	}
}

func TestOpenTrimsByAge(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, filePrefix+"20200101-000000.000.log")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	sink, err := Open(dir, WithMaxFileAge(24*time.Hour))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("stale log should be removed, stat err = %v", err)
	}
}
