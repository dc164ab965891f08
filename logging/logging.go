// Package logging builds the slog.Logger used throughout the daemon: a
// handler that tees every record to stdout and to a rotating log file
// under the configured log directory, as specified in section 6
// ("s3_upload.log — rotating text log, midnight rotation, 5 backups").
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	logFileName = "s3_upload.log"
	maxBackups  = 5
)

// rotatingWriter is an io.Writer that rotates its underlying file at
// midnight (local time), keeping at most maxBackups rotated files, mirroring
// the original implementation's TimedRotatingFileHandler(when="midnight",
// backupCount=5).
type rotatingWriter struct {
	mu         sync.Mutex
	dir        string
	file       *os.File
	rotateAt   time.Time
	nowFn      func() time.Time
	openFileFn func(path string) (*os.File, error)
}

func newRotatingWriter(dir string) (*rotatingWriter, error) {
	w := &rotatingWriter{
		dir:   dir,
		nowFn: time.Now,
	}
	w.openFileFn = func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := w.openFileFn(filepath.Join(dir, logFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	w.file = f
	w.rotateAt = nextMidnight(w.nowFn())

	return w, nil
}

// Write implements io.Writer. Each write is preceded by a rotation check,
// so writes remain append-and-atomic at the OS level per write call.
func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.nowFn().Before(w.rotateAt) {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	return w.file.Write(p)
}

// rotate renames the current log file with a timestamp suffix, opens a
// fresh one, and prunes backups beyond maxBackups.
func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file before rotation: %w", err)
	}

	current := filepath.Join(w.dir, logFileName)
	backupSuffix := w.rotateAt.Format("2006-01-02")
	backup := fmt.Sprintf("%s.%s", current, backupSuffix)
	if err := os.Rename(current, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	f, err := w.openFileFn(current)
	if err != nil {
		return fmt.Errorf("failed to open log file after rotation: %w", err)
	}
	w.file = f
	w.rotateAt = nextMidnight(w.nowFn())

	w.pruneBackups()
	return nil
}

// pruneBackups removes the oldest rotated files beyond maxBackups, matching
// the original implementation's backupCount semantics.
func (w *rotatingWriter) pruneBackups() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	var backups []string
	prefix := logFileName + "."
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			backups = append(backups, e.Name())
		}
	}

	if len(backups) <= maxBackups {
		return
	}

	// Backup names are date-suffixed (YYYY-MM-DD), so lexical order is
	// chronological; remove the oldest until at most maxBackups remain.
	for len(backups) > maxBackups {
		oldest := backups[0]
		for _, b := range backups {
			if b < oldest {
				oldest = b
			}
		}
		_ = os.Remove(filepath.Join(w.dir, oldest))

		remaining := backups[:0]
		for _, b := range backups {
			if b != oldest {
				remaining = append(remaining, b)
			}
		}
		backups = remaining
	}
}

func nextMidnight(from time.Time) time.Time {
	year, month, day := from.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, from.Location())
}

// New builds the daemon's logger: records go to both stdout and the
// rotating file under logDir, formatted as text (matching the teacher's
// plain console output style).
func New(logDir string) (*slog.Logger, func() error, error) {
	rw, err := newRotatingWriter(logDir)
	if err != nil {
		return nil, nil, err
	}

	writer := io.MultiWriter(os.Stdout, rw)
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})

	return slog.New(handler), func() error { return rw.file.Close() }, nil
}
