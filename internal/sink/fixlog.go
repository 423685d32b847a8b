// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sink holds the text outputs of a session: the operator console and
// the append-only fix log.
package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultDir holds fix logs opened without an explicit path.
const DefaultDir = "logs"

var errLogClosed = errors.New("fix log closed")

// DefaultPath returns logs/<start time>, e.g. logs/20260118-142501.
func DefaultPath(start time.Time) string {
	return filepath.Join(DefaultDir, start.Format("20060102-150405"))
}

// FileLog is an append-only text file with one record per line. Every
// append is synced to disk.
type FileLog struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// OpenFileLog creates (or appends to) the fix log at path, creating parent
// directories. An empty path selects DefaultPath(time.Now()).
func OpenFileLog(path string) (*FileLog, error) {
	if path == "" {
		path = DefaultPath(time.Now())
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open fix log: %w", err)
	}
	slog.Info("fix log opened", "path", path)
	return &FileLog{path: path, file: f}, nil
}

// Path returns the file the log writes to.
func (l *FileLog) Path() string {
	return l.path
}

// Append writes record followed by a newline.
func (l *FileLog) Append(record string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errLogClosed
	}
	if _, err := l.file.WriteString(record + "\n"); err != nil {
		return fmt.Errorf("failed to write fix log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync fix log to disk: %w", err)
	}
	return nil
}

// Close closes the file. Closing twice is a no-op.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
