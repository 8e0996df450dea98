package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Sternrassler/match-collector/pkg/riot"
)

// Compile-time interface check.
var _ Store = (*NDJSONStore)(nil)

// NDJSONStore appends one raw match payload per line. It does not detect
// duplicates across runs.
type NDJSONStore struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	seen map[string]struct{}
}

// NewNDJSONStore opens path for appending, creating it if needed.
func NewNDJSONStore(path string) (*NDJSONStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &NDJSONStore{
		file: f,
		w:    bufio.NewWriterSize(f, 64<<10),
		seen: make(map[string]struct{}),
	}, nil
}

// Write appends rec as one line.
func (s *NDJSONStore) Write(_ context.Context, rec *riot.MatchRecord) error {
	raw, err := rawPayload(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[rec.Metadata.MatchID]; dup {
		return ErrDuplicate
	}
	if err := compactLine(s.w, raw); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	s.seen[rec.Metadata.MatchID] = struct{}{}
	return nil
}

// Close flushes and closes the file.
func (s *NDJSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush: %w", flushErr)
	}
	return closeErr
}

// compactLine writes raw without insignificant whitespace, newline terminated.
func compactLine(w *bufio.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
