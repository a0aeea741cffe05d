package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestCSVSinkHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Backup", "backup_global_co2.csv")
	s := NewCSVSink(path, FlowHeader)

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		rec := FlowRecord{Timestamp: ts.Add(time.Duration(i) * time.Second), Channel: "F1", Flow: 29.7297297, CurrentMA: 13.5135, Voltage: 2, Status: "OK"}
		if err := s.Append(rec.Fields()); err != nil {
			t.Fatal(err)
		}
	}

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0] != "timestamp,channel_id,flow_sccm,current_ma,voltage,status" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-03-10 09:00:00,F1,29.7297,13.5135,2.0000,OK" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestCSVSinkHeaderForEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewCSVSink(path, []string{"a", "b"})
	if err := s.Append([]string{"1", "2"}); err != nil {
		t.Fatal(err)
	}
	if got := readLines(t, path); len(got) != 2 || got[0] != "a,b" {
		t.Errorf("got %q", got)
	}
}

func TestCSVSinkNoHeaderForExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewCSVSink(path, []string{"a", "b"})
	if err := s.Append([]string{"3", "4"}); err != nil {
		t.Fatal(err)
	}
	if got := readLines(t, path); len(got) != 3 || got[2] != "3,4" {
		t.Errorf("got %q", got)
	}
	if s.Size() == 0 {
		t.Error("Size should report the file size")
	}
}

func TestCSVSinkUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewCSVSink(filepath.Join(blocker, "sub", "t.csv"), []string{"a"})
	if err := s.Append([]string{"1"}); err == nil {
		t.Error("expected error writing below a regular file")
	}
}

func TestThermalRecordFields(t *testing.T) {
	r := ThermalRecord{
		Timestamp:   time.Date(2026, 3, 10, 9, 0, 5, 0, time.Local),
		Channel:     "F2",
		Temperature: 19.96,
		Setpoint:    20,
		Band:        0.5,
		Cold:        true,
		Dosing:      true,
		PumpFreq:    1000,
	}
	got := strings.Join(r.Fields(), ",")
	want := "2026-03-10 09:00:05,F2,20.0,20.00,0.50,1,0,1,1000.0"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestClearBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.csv")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ClearBackup(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("backup should be gone")
	}
	if err := ClearBackup(path); err != nil {
		t.Errorf("clearing a missing backup: %v", err)
	}
}
