// Package logging configures the StintFlow application logger.
//
// The logger writes to both the console and a per-session log file under
// the user's StintFlow directory. Every call site attaches a category
// (component) and an action (operation) so the log remains greppable
// when multiple subsystems interleave at 1 Hz.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// LogFileName is the name of the active session's log file.
const LogFileName = "stintflow.log"

// Logger wraps logrus.Logger with the category/action field convention
// used across StintFlow components.
type Logger struct {
	*logrus.Logger

	file *os.File
}

// Options control logger construction.
type Options struct {
	// Dir is the directory holding stintflow.log and its archives.
	// Empty means console-only logging (used by tests).
	Dir string

	// Level is a logrus level name ("debug", "info", ...). Invalid or
	// empty values fall back to info.
	Level string

	// RetentionDays bounds how long archived session logs are kept.
	// Non-positive disables the purge.
	RetentionDays int
}

// New builds the application logger. When a directory is configured the
// previous session's log is archived, a fresh file is opened with the
// session header, and archives past retention are purged.
func New(opts Options) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	l := &Logger{Logger: base}

	if opts.Dir == "" {
		base.SetOutput(os.Stderr)
		return l, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(opts.Dir, LogFileName)
	if err := RotateSessionLog(path, time.Now()); err != nil {
		// Rotation failure must not prevent startup; fall back to
		// appending to whatever file is there.
		fmt.Fprintf(os.Stderr, "warning: could not rotate log file: %v\n", err)
	}
	PurgeOldArchives(opts.Dir, opts.RetentionDays, time.Now())

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if err := writeSessionHeader(file, time.Now()); err != nil {
		file.Close()
		return nil, fmt.Errorf("write session header: %w", err)
	}

	l.file = file
	base.SetOutput(io.MultiWriter(os.Stderr, file))
	return l, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// WithAction returns an entry tagged with the category/action pair used
// throughout the codebase.
func (l *Logger) WithAction(category, action string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"category": category,
		"action":   action,
	})
}

// Discard returns a logger that drops everything. Used by tests and by
// components whose caller passed no logger.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Logger: base}
}

// DefaultDir returns the per-user directory holding StintFlow logs.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "StintFlow")
}
