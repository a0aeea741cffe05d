// Package mqtt publishes fermentation telemetry to an MQTT broker.
// The connection is publish-only: nothing received from the broker changes process state.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fermenter-controller/internal/store"
)

// DefaultPrefix is the topic root used when none is configured.
const DefaultPrefix = "fermentation"

// Topics builds the topic names under a prefix:
//
//	<prefix>/<channel>/thermal
//	<prefix>/<channel>/flow
//	<prefix>/<channel>/dosing
//	<prefix>/system
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

func (t Topics) Thermal(channel string) string { return t.prefix() + "/" + channel + "/thermal" }
func (t Topics) Flow(channel string) string    { return t.prefix() + "/" + channel + "/flow" }
func (t Topics) Dosing(channel string) string  { return t.prefix() + "/" + channel + "/dosing" }
func (t Topics) System() string                { return t.prefix() + "/system" }

// Publisher publishes telemetry. Errors are reported to the caller but must never stop
// the control loop.
type Publisher interface {
	PublishThermal(r store.ThermalRecord) error
	PublishFlow(r store.FlowRecord) error
	PublishDosing(channel string, n store.NutritionSample) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (STARTUP, SHUTDOWN, RECONNECTED, STOP_ALL).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // pre-formatted JSON; returned as is by FormatSystemPayload
	Retained   bool
}

// ThermalPayload is the JSON body of a thermal message.
type ThermalPayload struct {
	RunID       string  `json:"run_id,omitempty"`
	Timestamp   string  `json:"timestamp"`
	Channel     string  `json:"channel"`
	Temperature float64 `json:"temperature"`
	Setpoint    float64 `json:"setpoint"`
	Band        float64 `json:"band"`
	Cold        bool    `json:"cold_on"`
	Hot         bool    `json:"hot_on"`
	Dosing      bool    `json:"dosing_active"`
	PumpFreq    float64 `json:"pump_freq"`
}

// FlowPayload is the JSON body of a flow message.
type FlowPayload struct {
	RunID     string  `json:"run_id,omitempty"`
	Timestamp string  `json:"timestamp"`
	Channel   string  `json:"channel"`
	Flow      float64 `json:"flow_sccm"`
	CurrentMA float64 `json:"current_ma"`
	Voltage   float64 `json:"voltage"`
	Status    string  `json:"status"`
}

// DosingPayload is the JSON body of a dosing edge.
type DosingPayload struct {
	RunID     string `json:"run_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Active    bool   `json:"active"`
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatThermalPayload encodes a thermal record.
func FormatThermalPayload(r store.ThermalRecord, runID string) ([]byte, error) {
	return json.Marshal(ThermalPayload{
		RunID:       runID,
		Timestamp:   stamp(r.Timestamp),
		Channel:     r.Channel,
		Temperature: r.Temperature,
		Setpoint:    r.Setpoint,
		Band:        r.Band,
		Cold:        r.Cold,
		Hot:         r.Hot,
		Dosing:      r.Dosing,
		PumpFreq:    r.PumpFreq,
	})
}

// FormatFlowPayload encodes a flow record.
func FormatFlowPayload(r store.FlowRecord, runID string) ([]byte, error) {
	return json.Marshal(FlowPayload{
		RunID:     runID,
		Timestamp: stamp(r.Timestamp),
		Channel:   r.Channel,
		Flow:      r.Flow,
		CurrentMA: r.CurrentMA,
		Voltage:   r.Voltage,
		Status:    r.Status,
	})
}

// FormatDosingPayload encodes a dosing edge.
func FormatDosingPayload(channel string, n store.NutritionSample, runID string) ([]byte, error) {
	return json.Marshal(DosingPayload{
		RunID:     runID,
		Timestamp: stamp(n.Time),
		Channel:   channel,
		Active:    n.Active,
	})
}

// SystemPayload is the envelope for simple system events (LWT, RECONNECTED).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: stamp(event.Timestamp),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
