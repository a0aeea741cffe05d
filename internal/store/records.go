// Package store persists process data: per-vessel CSV logs under operator control, global
// always-on backup CSVs, bounded in-memory histories and a SQLite time-series mirror.
// Every write is best-effort; failures are returned for reporting and never stop the
// control loop.
package store

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the local-time format of every persisted timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// CSV headers.
var (
	ThermalHeader     = []string{"timestamp", "channel_id", "temperature", "setpoint", "band", "cold_on", "hot_on", "dosing_active", "pump_freq"}
	FlowHeader        = []string{"timestamp", "channel_id", "flow_sccm", "current_ma", "voltage", "status"}
	FlowChannelHeader = []string{"timestamp", "channel_id", "flow_sccm", "status"}
)

// ThermalRecord is one control-tick snapshot of a vessel.
type ThermalRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Channel     string    `json:"channel"`
	Temperature float64   `json:"temperature"`
	Setpoint    float64   `json:"setpoint"`
	Band        float64   `json:"band"`
	Cold        bool      `json:"cold_on"`
	Hot         bool      `json:"hot_on"`
	Dosing      bool      `json:"dosing_active"`
	PumpFreq    float64   `json:"pump_freq"`
}

// Fields renders the record in ThermalHeader order.
func (r ThermalRecord) Fields() []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		r.Channel,
		fmt.Sprintf("%.1f", r.Temperature),
		fmt.Sprintf("%.2f", r.Setpoint),
		fmt.Sprintf("%.2f", r.Band),
		flag(r.Cold),
		flag(r.Hot),
		flag(r.Dosing),
		fmt.Sprintf("%.1f", r.PumpFreq),
	}
}

// FlowRecord is one converted flow-meter sample.
type FlowRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Flow      float64   `json:"flow_sccm"`
	CurrentMA float64   `json:"current_ma"`
	Voltage   float64   `json:"voltage"`
	Status    string    `json:"status"`
}

// Fields renders the record in FlowHeader order.
func (r FlowRecord) Fields() []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		r.Channel,
		fmt.Sprintf("%.4f", r.Flow),
		fmt.Sprintf("%.4f", r.CurrentMA),
		fmt.Sprintf("%.4f", r.Voltage),
		r.Status,
	}
}

// ChannelFields renders the record in FlowChannelHeader order.
func (r FlowRecord) ChannelFields() []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		r.Channel,
		fmt.Sprintf("%.4f", r.Flow),
		r.Status,
	}
}

// FlowSample is a point of the in-memory flow history.
type FlowSample struct {
	Time      time.Time `json:"time"`
	Flow      float64   `json:"flow"`
	CurrentMA float64   `json:"current_ma"`
	Voltage   float64   `json:"voltage"`
	Status    string    `json:"status"`
}

// Sample returns the history point for the record.
func (r FlowRecord) Sample() FlowSample {
	return FlowSample{Time: r.Timestamp, Flow: r.Flow, CurrentMA: r.CurrentMA, Voltage: r.Voltage, Status: r.Status}
}

// NutritionSample records a dosing pump state change.
type NutritionSample struct {
	Time   time.Time `json:"time"`
	Active bool      `json:"active"`
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseFlag(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v != 0
}
