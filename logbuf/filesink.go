package logbuf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink appends one JSON object per line to a file, rotating to a
// timestamped sibling when the file grows past maxSize (spec.md §4.6,
// invariant 10). Writes run on whichever goroutine appends and are
// serialised by the sink's mutex; there is no dedicated logger goroutine.
// Like the teacher's file-backed stores, there is no cross-process fencing
// of the underlying file handle.
type FileSink struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
	size    int64
	now     func() time.Time
}

// NewFileSink opens (creating if necessary) the sink at path.
func NewFileSink(path string, maxSize int64) (*FileSink, error) {
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logbuf: creating log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logbuf: opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("logbuf: statting log file: %w", err)
	}

	return &FileSink{
		path:    path,
		maxSize: maxSize,
		f:       f,
		size:    info.Size(),
		now:     time.Now,
	}, nil
}

// Write appends rec as a single JSON line, rotating first if the file has
// already exceeded maxSize. Rotation and append are best-effort: an error
// here is returned to the caller, and Store.Append ignores it. The write
// itself is synchronous, so the caller waits for the disk I/O.
func (s *FileSink) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size >= s.maxSize {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("logbuf: encoding record: %w", err)
	}
	line = append(line, '\n')

	n, err := s.f.Write(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("logbuf: writing log record: %w", err)
	}
	return nil
}

func (s *FileSink) rotateLocked() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("logbuf: closing log file for rotation: %w", err)
	}

	rotated := fmt.Sprintf("%s.%s", s.path, s.now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(s.path, rotated); err != nil {
		return fmt.Errorf("logbuf: rotating log file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logbuf: reopening log file after rotation: %w", err)
	}
	s.f = f
	s.size = 0
	return nil
}

// Close closes the underlying file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
