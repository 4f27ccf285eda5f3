// Package audit keeps the append-only trail of every line received from the
// controller.
package audit

import (
	"fmt"
	"os"
	"sync"

	"doorwatch/internal/types"
)

// FileSink appends each line to a single text file. Writes are unbuffered so
// every line reaches the kernel before Append returns.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string) (*FileSink, error) {
	s := &FileSink{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes line plus a newline. After a failed write the file is closed
// and the next Append reopens it, so a transient fault clears on its own.
func (s *FileSink) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	if _, err := s.f.WriteString(line + "\n"); err != nil {
		s.f.Close()
		s.f = nil
		return types.NewAppError(types.ErrCodeAuditWrite, "failed to append audit line", err).
			WithDetails(map[string]any{"path": s.path})
	}
	return nil
}

// Path returns the audit file location.
func (s *FileSink) Path() string { return s.path }

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return types.NewAppError(types.ErrCodeAuditWrite, fmt.Sprintf("failed to open audit file %s", s.path), err)
	}
	s.f = f
	return nil
}
