package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Mode          string        `json:"mode"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastTick      string        `json:"last_tick,omitempty"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Vessels       []VesselJSON  `json:"vessels"`
	Flows         []FlowJSON    `json:"flows"`
	History       []HistoryJSON `json:"history,omitempty"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// VesselJSON is the JSON representation of a Vessel.
type VesselJSON struct {
	Name         string  `json:"name"`
	Temperature  float64 `json:"temperature"`
	TempFallback bool    `json:"temperature_fallback,omitempty"`
	Setpoint     float64 `json:"setpoint"`
	Band         float64 `json:"band"`
	Manual       bool    `json:"manual"`
	Cold         bool    `json:"cold_on"`
	Hot          bool    `json:"hot_on"`
	Dosing       bool    `json:"dosing_active"`
	DosingUntil  string  `json:"dosing_until,omitempty"`
	ManualPump   bool    `json:"manual_pump"`
	PumpFreq     float64 `json:"pump_freq"`
	Recording    string  `json:"recording"`
}

// FlowJSON is the JSON representation of a FlowChannel.
type FlowJSON struct {
	Name          string  `json:"name"`
	Flow          float64 `json:"flow_sccm"`
	CurrentMA     float64 `json:"current_ma"`
	Voltage       float64 `json:"voltage"`
	Status        string  `json:"status"`
	MassRate      float64 `json:"mass_rate_g_l_h"`
	LastSample    string  `json:"last_sample,omitempty"`
	PeriodSeconds float64 `json:"period_seconds"`
	Samples       int     `json:"samples"`
	Recording     string  `json:"recording"`
}

// HistoryJSON is the JSON representation of a History summary.
type HistoryJSON struct {
	Channel     string  `json:"channel"`
	Since       string  `json:"since"`
	LoadedAt    string  `json:"loaded_at"`
	ThermalRows int     `json:"thermal_rows"`
	FlowRows    int     `json:"flow_rows"`
	MeanTemp    float64 `json:"mean_temperature"`
	MeanFlow    float64 `json:"mean_flow"`
	Err         string  `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs    int64  `json:"tick_ms"`
	Broker    string `json:"broker"`
	HTTPAddr  string `json:"http_addr"`
	RunID     string `json:"run_id"`
	Simulator bool   `json:"simulator"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	mode := snap.Mode
	if mode == "" {
		mode = "UNKNOWN"
	}
	inner := StatusInner{
		Mode:          mode,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     rfc3339(snap.StartTime),
		Timestamp:     rfc3339(snap.Now),
		LastTick:      rfc3339(snap.LastTick),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Vessels:       make([]VesselJSON, 0, len(snap.Vessels)),
		Flows:         make([]FlowJSON, 0, len(snap.Flows)),
		Config: ConfigJSON{
			TickMs:    snap.Config.TickMs,
			Broker:    snap.Config.Broker,
			HTTPAddr:  snap.Config.HTTPAddr,
			RunID:     snap.Config.RunID,
			Simulator: snap.Config.Simulator,
		},
	}
	for _, v := range snap.Vessels {
		inner.Vessels = append(inner.Vessels, VesselJSON{
			Name:         v.Name,
			Temperature:  v.Temperature,
			TempFallback: v.TempFallback,
			Setpoint:     v.Setpoint,
			Band:         v.Band,
			Manual:       v.Manual,
			Cold:         v.Cold,
			Hot:          v.Hot,
			Dosing:       v.Dosing,
			DosingUntil:  rfc3339(v.DosingUntil),
			ManualPump:   v.ManualPump,
			PumpFreq:     v.PumpFreq,
			Recording:    v.Recording,
		})
	}
	for _, f := range snap.Flows {
		inner.Flows = append(inner.Flows, FlowJSON{
			Name:          f.Name,
			Flow:          f.Flow,
			CurrentMA:     f.CurrentMA,
			Voltage:       f.Voltage,
			Status:        f.Status,
			MassRate:      f.MassRate,
			LastSample:    rfc3339(f.LastSample),
			PeriodSeconds: f.Period.Seconds(),
			Samples:       f.Samples,
			Recording:     f.Recording,
		})
	}
	for _, h := range snap.History {
		inner.History = append(inner.History, HistoryJSON{
			Channel:     h.Channel,
			Since:       rfc3339(h.Since),
			LoadedAt:    rfc3339(h.LoadedAt),
			ThermalRows: h.ThermalRows,
			FlowRows:    h.FlowRows,
			MeanTemp:    h.MeanTemp,
			MeanFlow:    h.MeanFlow,
			Err:         h.Err,
		})
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
