package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CSVSink appends records to a CSV file. The header is written exactly once: when the
// file does not exist or is empty.
type CSVSink struct {
	Path   string
	Header []string
}

// NewCSVSink returns a sink for path.
func NewCSVSink(path string, header []string) *CSVSink {
	return &CSVSink{Path: path, Header: header}
}

// Append writes one record, creating the parent directory and header as needed.
func (s *CSVSink) Append(fields []string) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	writeHeader := false
	info, err := os.Stat(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeHeader = true
	case err != nil:
		return fmt.Errorf("stat %s: %w", s.Path, err)
	case info.Size() == 0:
		writeHeader = true
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		w.Write(s.Header)
	}
	w.Write(fields)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.Path, err)
	}
	return nil
}

// Size returns the file size, or 0 when it does not exist.
func (s *CSVSink) Size() int64 {
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ClearBackup deletes a global backup file. A missing file is not an error.
func ClearBackup(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear backup %s: %w", path, err)
	}
	return nil
}
