package recorder

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openaero/airstate/internal/feed"
)

var _ feed.RawRecorder = (*Recorder)(nil)

func TestNew(t *testing.T) {
	rec := New("/data/raw")
	if rec == nil {
		t.Fatal("New() returned nil")
	}
	if rec.dir != "/data/raw" {
		t.Errorf("dir = %q, want /data/raw", rec.dir)
	}
	if rec.file != nil {
		t.Error("Expected no open file initially")
	}
}

func TestRecorder_Record(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir)
	defer rec.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := rec.Record("MSG,3,1,1,A1B2C3,1", ts); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := rec.Record("MSG,4,1,1,A1B2C3,1", ts.Add(time.Second)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "sbs_2024-06-01.log"))
	if err != nil {
		t.Fatalf("Failed to read capture file: %v", err)
	}
	want := "MSG,3,1,1,A1B2C3,1\nMSG,4,1,1,A1B2C3,1\n"
	if string(content) != want {
		t.Errorf("Capture content = %q, want %q", string(content), want)
	}
}

func TestRecorder_RotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir)
	defer rec.Close()

	day1 := time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 0, 0, 1, 0, time.UTC)

	if err := rec.Record("last of day one", day1); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := rec.Record("first of day two", day2); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	first, err := os.ReadFile(filepath.Join(dir, "sbs_2024-06-01.log"))
	if err != nil {
		t.Fatalf("Failed to read first day: %v", err)
	}
	if string(first) != "last of day one\n" {
		t.Errorf("First day content = %q", string(first))
	}

	second, err := os.ReadFile(filepath.Join(dir, "sbs_2024-06-02.log"))
	if err != nil {
		t.Fatalf("Failed to read second day: %v", err)
	}
	if string(second) != "first of day two\n" {
		t.Errorf("Second day content = %q", string(second))
	}
}

func TestRecorder_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := New(dir)
	if err := rec.Record("before restart", ts); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	rec = New(dir)
	defer rec.Close()
	if err := rec.Record("after restart", ts.Add(time.Minute)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "sbs_2024-06-01.log"))
	if err != nil {
		t.Fatalf("Failed to read capture file: %v", err)
	}
	if string(content) != "before restart\nafter restart\n" {
		t.Errorf("Capture content = %q", string(content))
	}
}

func TestRecorder_RecordFailsUnderFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create blocker file: %v", err)
	}

	rec := New(filepath.Join(blocker, "capture"))
	if err := rec.Record("line", time.Now()); err == nil {
		t.Error("Record() should fail when the directory cannot be created")
	}
}

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sbs_2024-06-01.log")
	content := "MSG,3,1,1,A1B2C3,1\nMSG,4,1,1,A1B2C3,1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := compressFile(path); err != nil {
		t.Fatalf("compressFile() failed: %v", err)
	}

	if _, err := os.Stat(path); err == nil {
		t.Error("Original file should have been removed")
	}

	file, err := os.Open(path + ".gz")
	if err != nil {
		t.Fatalf("Compressed file should exist: %v", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("Failed to read decompressed content: %v", err)
	}
	if string(decompressed) != content {
		t.Errorf("Decompressed content = %q, want %q", string(decompressed), content)
	}
}

func TestCompressFile_NonExistent(t *testing.T) {
	if err := compressFile(filepath.Join(t.TempDir(), "missing.log")); err == nil {
		t.Error("compressFile() should fail for a missing file")
	}
}

func TestRecorder_CompressFinishedDays(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir)
	defer rec.Close()

	old := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := rec.Record("old day line", old); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := rec.Record("current day line", time.Now()); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	if err := rec.compressFinishedDays(); err != nil {
		t.Fatalf("compressFinishedDays() failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "sbs_2024-06-01.log")); err == nil {
		t.Error("Finished day should have been compressed away")
	}
	gzPath := filepath.Join(dir, "sbs_2024-06-01.log.gz")
	file, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("Expected %s: %v", gzPath, err)
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gz.Close()
	decompressed, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("Failed to read decompressed content: %v", err)
	}
	if string(decompressed) != "old day line\n" {
		t.Errorf("Decompressed content = %q", string(decompressed))
	}

	// The current day keeps its uncompressed file.
	today := time.Now().UTC().Format("2006-01-02")
	if _, err := os.Stat(filepath.Join(dir, "sbs_"+today+".log")); err != nil {
		t.Errorf("Current day capture should remain: %v", err)
	}
}

func TestRecorder_ConcurrentRecords(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir)
	defer rec.Close()

	const numGoroutines = 10
	const linesPerGoroutine = 10
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < linesPerGoroutine; j++ {
				line := fmt.Sprintf("line %d from goroutine %d", j, id)
				if err := rec.Record(line, ts); err != nil {
					t.Errorf("Record() failed: %v", err)
				}
			}
			done <- true
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	content, err := os.ReadFile(filepath.Join(dir, "sbs_2024-06-01.log"))
	if err != nil {
		t.Fatalf("Failed to read capture file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != numGoroutines*linesPerGoroutine {
		t.Errorf("Expected %d lines, got %d", numGoroutines*linesPerGoroutine, len(lines))
	}
}

func TestRecorder_RunStopsOnCancel(t *testing.T) {
	rec := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}

func TestRecorder_CloseWithoutRecord(t *testing.T) {
	rec := New(t.TempDir())
	if err := rec.Close(); err != nil {
		t.Errorf("Close() should not fail when nothing was recorded: %v", err)
	}
}
