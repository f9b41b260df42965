// Package logging sets up the file logger. The TUI owns the terminal, so
// nothing is written to stdout or stderr while it runs.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// MaxLogBytes is the size at which the log is rotated on open
const MaxLogBytes = 4 << 20

// Open returns a logger appending to path. An oversized log is moved to
// path+".1" first.
func Open(path string) (*log.Logger, io.Closer, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if info, err := os.Stat(trimmed); err == nil && info.Size() > MaxLogBytes {
		if err := os.Rename(trimmed, trimmed+".1"); err != nil {
			return nil, nil, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), f, nil
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
