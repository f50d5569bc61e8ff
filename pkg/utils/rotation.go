package utils

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
)

// RotatingWriter appends to a log file and renames it to name.1, name.2 and
// so on once it reaches maxBytes. A maxBytes of 0 disables rotation.
type RotatingWriter struct {
	mu sync.Mutex

	fs         billy.Filesystem
	name       string
	maxBytes   int64
	maxBackups int

	file billy.File
	size int64
}

// NewRotatingWriter opens name on fs for appending.
func NewRotatingWriter(fs billy.Filesystem, name string, maxBytes int64, maxBackups int) (*RotatingWriter, error) {
	if name == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if maxBackups <= 0 {
		maxBackups = 1
	}

	w := &RotatingWriter{
		fs:         fs,
		name:       name,
		maxBytes:   maxBytes,
		maxBackups: maxBackups,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.maxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the log file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close current log file: %w", err)
	}
	w.file = nil

	// oldest backup first so every rename has a free target
	if err := w.fs.Remove(w.backupName(w.maxBackups)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i := w.maxBackups - 1; i >= 1; i-- {
		if err := w.fs.Rename(w.backupName(i), w.backupName(i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := w.fs.Rename(w.name, w.backupName(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	return w.openFile()
}

func (w *RotatingWriter) openFile() error {
	file, err := w.fs.OpenFile(w.name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := w.fs.Stat(w.name)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) backupName(n int) string {
	return fmt.Sprintf("%s.%d", w.name, n)
}
