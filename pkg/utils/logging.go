// Package utils holds process-level helpers shared by the tiercache binaries.
package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
)

// LoggingConfig selects level, format and destination of the process logger.
type LoggingConfig struct {
	Level  string
	Format string

	// File enables a rotating log file instead of stderr.
	File       string
	MaxSizeMB  int64
	MaxBackups int
}

// ParseLogLevel parses a string log level
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// SetupLogging builds a logger for cfg. The returned closer releases the log
// file and is a no-op when logging to stderr.
func SetupLogging(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		abs, err := filepath.Abs(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve log file: %w", err)
		}
		w, err := NewRotatingWriter(osfs.New(filepath.Dir(abs)), filepath.Base(abs), cfg.MaxSizeMB*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		output, closer = w, w
	}

	logger, err := NewLogger(output, level, cfg.Format)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return logger, closer, nil
}

// NewLogger returns a text or json slog logger writing to w.
func NewLogger(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
