package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrRecording is returned when an export is attempted while recording.
	ErrRecording = errors.New("store: log is recording")

	// ErrNotRecording is returned when pausing a log that is not recording.
	ErrNotRecording = errors.New("store: log is not recording")

	// ErrNoLog is returned when exporting a log that has never been written.
	ErrNoLog = errors.New("store: no log file")

	// ErrExportOntoLog is returned when an export destination is the log file itself.
	ErrExportOntoLog = errors.New("store: export destination is the log itself")
)

// RecorderState is the operator-controlled state of a per-vessel log.
type RecorderState int

const (
	Idle RecorderState = iota
	Recording
	Paused
)

func (s RecorderState) String() string {
	switch s {
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// ChannelLog is a per-vessel CSV log that only accepts writes while recording.
// Transitions: Idle -> Recording -> Paused <-> Recording; Restart returns to Idle.
type ChannelLog struct {
	mu    sync.Mutex
	sink  *CSVSink
	state RecorderState
}

// NewChannelLog returns an idle log at path.
func NewChannelLog(path string, header []string) *ChannelLog {
	return &ChannelLog{sink: NewCSVSink(path, header)}
}

// Path returns the log file path.
func (l *ChannelLog) Path() string { return l.sink.Path }

// State returns the recorder state.
func (l *ChannelLog) State() RecorderState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start begins or resumes recording.
func (l *ChannelLog) Start() {
	l.mu.Lock()
	l.state = Recording
	l.mu.Unlock()
}

// Pause suspends recording.
func (l *ChannelLog) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Recording {
		return ErrNotRecording
	}
	l.state = Paused
	return nil
}

// Restart deletes the log file and returns to Idle.
func (l *ChannelLog) Restart() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.sink.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", l.sink.Path, err)
	}
	l.state = Idle
	return nil
}

// Write appends fields when recording and is a no-op otherwise.
func (l *ChannelLog) Write(fields []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Recording {
		return nil
	}
	return l.sink.Append(fields)
}

// Export copies the log byte for byte to dst. If dst is a directory the file keeps its
// base name. Refused while recording and when dst resolves to the log file.
func (l *ChannelLog) Export(dst string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Recording {
		return 0, ErrRecording
	}

	src, err := os.Open(l.sink.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNoLog
	}
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", l.sink.Path, err)
	}
	defer src.Close()

	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(l.sink.Path))
	}
	if srcInfo, err := src.Stat(); err == nil {
		if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
			return 0, fmt.Errorf("%w: %s", ErrExportOntoLog, dst)
		}
	}
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", dst, err)
	}
	return n, nil
}

// DualWriter writes every record to a vessel's log and to the global backup.
type DualWriter struct {
	Log    *ChannelLog
	Backup *CSVSink
}

// Write attempts both sinks and joins their errors.
func (d DualWriter) Write(logFields, backupFields []string) error {
	var errs []error
	if d.Log != nil {
		if err := d.Log.Write(logFields); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Backup != nil {
		if err := d.Backup.Append(backupFields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
