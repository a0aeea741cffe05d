package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

var backupTimeLayouts = []string{TimestampLayout, "2006/01/02 15:04:05"}

func parseBackupTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range backupTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// readBackup streams the rows of a backup CSV newer than since (inclusive) and belonging
// to channel (all channels when empty) into fn, keyed by header name. Malformed rows are
// skipped. A missing file yields no rows.
func readBackup(path string, since time.Time, channel string, fn func(ts time.Time, row map[string]string)) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header %s: %w", path, err)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if len(rec) != len(header) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = rec[i]
		}
		ts, ok := parseBackupTime(row["timestamp"])
		if !ok || ts.Before(since) {
			continue
		}
		if channel != "" && !strings.EqualFold(row["channel_id"], channel) {
			continue
		}
		fn(ts, row)
	}
}

// ReadThermalBackup loads thermal rows from the global thermal backup.
func ReadThermalBackup(path string, since time.Time, channel string) ([]ThermalRecord, error) {
	var out []ThermalRecord
	err := readBackup(path, since, channel, func(ts time.Time, row map[string]string) {
		temp, err := strconv.ParseFloat(row["temperature"], 64)
		if err != nil {
			return
		}
		sp, _ := strconv.ParseFloat(row["setpoint"], 64)
		band, _ := strconv.ParseFloat(row["band"], 64)
		freq, _ := strconv.ParseFloat(row["pump_freq"], 64)
		out = append(out, ThermalRecord{
			Timestamp:   ts,
			Channel:     row["channel_id"],
			Temperature: temp,
			Setpoint:    sp,
			Band:        band,
			Cold:        parseFlag(row["cold_on"]),
			Hot:         parseFlag(row["hot_on"]),
			Dosing:      parseFlag(row["dosing_active"]),
			PumpFreq:    freq,
		})
	})
	return out, err
}

// ReadFlowBackup loads flow rows from the global flow backup. Rows sharing a timestamp
// and channel are collapsed to the last one.
func ReadFlowBackup(path string, since time.Time, channel string) ([]FlowRecord, error) {
	var out []FlowRecord
	index := map[string]int{}
	err := readBackup(path, since, channel, func(ts time.Time, row map[string]string) {
		fl, err := strconv.ParseFloat(row["flow_sccm"], 64)
		if err != nil {
			return
		}
		cur, _ := strconv.ParseFloat(row["current_ma"], 64)
		volt, _ := strconv.ParseFloat(row["voltage"], 64)
		rec := FlowRecord{
			Timestamp: ts,
			Channel:   row["channel_id"],
			Flow:      fl,
			CurrentMA: cur,
			Voltage:   volt,
			Status:    row["status"],
		}
		key := rec.Channel + "|" + row["timestamp"]
		if i, ok := index[key]; ok {
			out[i] = rec
			return
		}
		index[key] = len(out)
		out = append(out, rec)
	})
	return out, err
}
