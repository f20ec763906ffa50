package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotatingFile is a log file that is renamed aside after maxLines lines.
// Files in the directory older than the retention window are removed on
// every rotation.
type rotatingFile struct {
	mu        sync.Mutex
	dir       string
	name      string
	file      *os.File
	lineCount int
	maxLines  int
	retention time.Duration
	now       func() time.Time
}

func openRotatingFile(dir, name string, maxLines, retentionDays int) (*rotatingFile, error) {
	r := &rotatingFile{
		dir:       dir,
		name:      name,
		maxLines:  maxLines,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}

	var err error
	r.file, err = os.OpenFile(r.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) path() string {
	return filepath.Join(r.dir, r.name)
}

// Write implements io.Writer
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return len(p), nil
	}

	n, err := r.file.Write(p)
	r.lineCount += bytes.Count(p[:n], []byte{'\n'})

	// Check if rotation is needed
	if r.lineCount >= r.maxLines {
		r.rotate()
	}
	return n, err
}

// Close closes the current file
func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate handles log file rotation, r.mu must be held
func (r *rotatingFile) rotate() {
	r.file.Close()

	// Generate a timestamp for the rotated log file
	timestamp := r.now().Format("060102_150405.000")
	oldPath := r.path()
	newPath := filepath.Join(r.dir, fmt.Sprintf("%s_%s", timestamp, r.name))

	if err := os.Rename(oldPath, newPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error rotating log file: %v\n", err)
		// Try to reopen the original file
		var reopenErr error
		r.file, reopenErr = os.OpenFile(oldPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if reopenErr != nil {
			fmt.Fprintf(os.Stderr, "Error reopening log file: %v\n", reopenErr)
			r.file = nil
		}
		return
	}

	var err error
	r.file, err = os.OpenFile(oldPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating new log file: %v\n", err)
		r.file = nil
		return
	}
	r.lineCount = 0

	fmt.Fprintf(r.file, "%s [INFO] Log rotated. Previous log: %s\n", r.now().Format(timestampFormat), newPath)
	r.lineCount++

	r.cleanup()
}

// cleanup removes files in the log directory older than the retention window
func (r *rotatingFile) cleanup() {
	cutoffTime := r.now().Add(-r.retention)

	files, err := os.ReadDir(r.dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading log directory: %v\n", err)
		return
	}

	for _, file := range files {
		if file.IsDir() || file.Name() == r.name {
			continue
		}

		fileInfo, err := file.Info()
		if err != nil {
			continue
		}

		if fileInfo.ModTime().Before(cutoffTime) {
			filePath := filepath.Join(r.dir, fileInfo.Name())
			if err := os.Remove(filePath); err != nil {
				fmt.Fprintf(os.Stderr, "Error deleting old log file %s: %v\n", filePath, err)
			}
		}
	}
}
