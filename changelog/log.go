package changelog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lexandro/assetref-mcp/assets"
)

// Log is the pending change log file. Appends and Discard are serialized so
// entries recorded while a drain is running survive that drain.
type Log struct {
	mu   sync.Mutex
	path string
	// consumed counts the lines discarded since the Log was created. Marks
	// are absolute positions, so two readers holding overlapping snapshots
	// never drop the same line twice.
	consumed uint64
}

// Mark is the absolute position just past the last line of a snapshot.
type Mark uint64

// NewLog returns a log backed by path. The file is created on first Append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes entries at the end of the log, one per line.
func (l *Log) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	for _, e := range entries {
		if strings.Contains(e.Identifier, ",") || strings.Contains(e.Path, ",") {
			return fmt.Errorf("%w: comma in %q", ErrMalformed, e.String())
		}
		b.WriteString(e.String())
		b.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating change log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening change log: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("appending to change log: %w", err)
	}
	return f.Close()
}

// Lines returns the raw non-empty lines of the log. A missing log has no lines.
func (l *Log) Lines() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// Snapshot returns the current lines and the mark to pass to Discard once
// they have been applied.
func (l *Log) Snapshot() ([]string, Mark, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lines, err := l.readLocked()
	if err != nil {
		return nil, 0, err
	}
	return lines, Mark(l.consumed + uint64(len(lines))), nil
}

// Exists reports whether the log file is present.
func (l *Log) Exists() bool {
	return assets.Exists(l.path)
}

// Discard drops every line before through that is still in the log. Lines
// an earlier Discard already dropped are not counted again, and lines
// appended after the snapshot are kept. The file is deleted when nothing
// remains.
func (l *Log) Discard(through Mark) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if uint64(through) <= l.consumed {
		return nil
	}
	lines, err := l.readLocked()
	if err != nil {
		return err
	}
	n := min(int(uint64(through)-l.consumed), len(lines))
	if n == len(lines) {
		if err := l.removeLocked(); err != nil {
			return err
		}
		l.consumed = uint64(through)
		return nil
	}

	rest := strings.Join(lines[n:], "\n") + "\n"
	if err := assets.WriteFile(l.path, []byte(rest)); err != nil {
		return fmt.Errorf("rewriting change log: %w", err)
	}
	l.consumed += uint64(n)
	return nil
}

func (l *Log) readLocked() ([]string, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening change log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading change log: %w", err)
	}
	return lines, nil
}

func (l *Log) removeLocked() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing change log: %w", err)
	}
	return nil
}
