// Package recorder captures raw BaseStation lines into one log file
// per UTC day and gzips each finished day.
package recorder

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openaero/airstate/internal/logging"
)

// Recorder appends raw SBS lines to a daily capture file.
type Recorder struct {
	dir string

	mu   sync.Mutex
	file *os.File
	day  string
}

// New creates a recorder writing under dir. The directory is created
// on first write.
func New(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Record appends line to the capture file for ts's UTC day, opening or
// rotating the file as needed.
func (r *Recorder) Record(line string, ts time.Time) error {
	day := ts.UTC().Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil || day != r.day {
		if err := r.openLocked(day); err != nil {
			return err
		}
	}

	_, err := r.file.WriteString(line + "\n")
	return err
}

func (r *Recorder) openLocked(day string) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	name := filepath.Join(r.dir, captureName(day))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}

	r.file = file
	r.day = day
	return nil
}

// Run compresses finished days shortly after each midnight UTC until
// ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		now := time.Now().UTC()
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		timer := time.NewTimer(midnight.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := r.compressFinishedDays(); err != nil {
				logging.Error().Err(err).Msg("Failed to compress finished capture files")
			}
		}
	}
}

// compressFinishedDays gzips every capture file from a day before
// today, including days missed while the process was down.
func (r *Recorder) compressFinishedDays() error {
	today := time.Now().UTC().Format("2006-01-02")

	r.mu.Lock()
	if r.file != nil && r.day != today {
		r.file.Close()
		r.file = nil
	}
	r.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(r.dir, "sbs_*.log"))
	if err != nil {
		return err
	}

	current := filepath.Join(r.dir, captureName(today))
	for _, path := range matches {
		if path == current {
			continue
		}
		if err := compressFile(path); err != nil {
			return fmt.Errorf("failed to compress %s: %w", path, err)
		}
		logging.Info().Str("file", path+".gz").Msg("Compressed capture file")
	}
	return nil
}

// Close closes the current capture file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

func captureName(day string) string {
	return fmt.Sprintf("sbs_%s.log", day)
}

// compressFile gzips path next to itself and removes the original.
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gz := gzip.NewWriter(target)
	if _, err := io.Copy(gz, source); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
