// Package logger provides line-count based rotation for session log files.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Rotator wraps an io.Writer and keeps the backing file bounded to a fixed
// number of recent lines. Rotation rewrites the file from an in-memory ring
// of the latest lines once twice the capacity has passed through.
type Rotator struct {
	writer   io.Writer
	ring     *lineRing
	filePath string
	mu       sync.Mutex
}

// NewRotator creates a Rotator keeping at most maxLines lines in filePath.
func NewRotator(writer io.Writer, maxLines int, filePath string) *Rotator {
	return &Rotator{
		writer:   writer,
		ring:     newLineRing(maxLines),
		filePath: filePath,
	}
}

// Write implements io.Writer and maintains the line ring.
func (w *Rotator) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Append to the underlying file first
	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.ring.add(line)

		// Rotate once twice the capacity has passed through
		if w.ring.totalSeen == w.ring.capacity*2 {
			if err := w.rotate(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}
			w.ring.totalSeen = w.ring.size
		}
	}

	return n, nil
}

// rotate replaces the file with the ring contents.
func (w *Rotator) rotate() error {
	lines := w.ring.snapshot()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}
	tempPath := temp.Name()

	content := strings.Join(lines, "\n") + "\n"
	if _, err := temp.WriteString(content); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	temp.Close()

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows cannot rename over an open file
	os.Remove(w.filePath)
	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.writer = newFile

	return nil
}

// lineRing is a circular buffer of the most recent log lines.
type lineRing struct {
	lines     []string
	capacity  int
	head      int // next write position
	size      int // current number of buffered lines
	totalSeen int // lines that have passed through since last reset
}

func newLineRing(capacity int) *lineRing {
	return &lineRing{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

func (rb *lineRing) add(line string) {
	rb.lines[rb.head] = line

	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}

	rb.totalSeen++
}

// snapshot returns the buffered lines in chronological order.
func (rb *lineRing) snapshot() []string {
	if rb.size == 0 {
		return nil
	}

	result := make([]string, rb.size)
	start := (rb.head - rb.size + rb.capacity) % rb.capacity
	for i := range rb.size {
		result[i] = rb.lines[(start+i)%rb.capacity]
	}

	return result
}
