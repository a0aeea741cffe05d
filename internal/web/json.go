package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fermenter-controller/internal/store"
)

// ThermalHistoryJSON is the response of /api/channels/{name}/thermal.
type ThermalHistoryJSON struct {
	Channel string              `json:"channel"`
	Since   string              `json:"since"`
	Count   int                 `json:"count"`
	Samples []ThermalSampleJSON `json:"samples"`
}

// ThermalSampleJSON is one thermal row.
type ThermalSampleJSON struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Setpoint    float64 `json:"setpoint"`
	Cold        bool    `json:"cold_on"`
	Hot         bool    `json:"hot_on"`
	Dosing      bool    `json:"dosing_active"`
}

// FlowHistoryJSON is the response of /api/channels/{name}/flow.
type FlowHistoryJSON struct {
	Channel string           `json:"channel"`
	Since   string           `json:"since"`
	Count   int              `json:"count"`
	Samples []FlowSampleJSON `json:"samples"`
}

// FlowSampleJSON is one flow sample.
type FlowSampleJSON struct {
	Timestamp string  `json:"timestamp"`
	Flow      float64 `json:"flow_sccm"`
	Status    string  `json:"status"`
}

func formatThermalHistory(channel string, since time.Time, recs []store.ThermalRecord) []byte {
	out := ThermalHistoryJSON{
		Channel: channel,
		Since:   since.UTC().Format(time.RFC3339),
		Count:   len(recs),
		Samples: make([]ThermalSampleJSON, 0, len(recs)),
	}
	for _, r := range recs {
		out.Samples = append(out.Samples, ThermalSampleJSON{
			Timestamp:   r.Timestamp.UTC().Format(time.RFC3339),
			Temperature: r.Temperature,
			Setpoint:    r.Setpoint,
			Cold:        r.Cold,
			Hot:         r.Hot,
			Dosing:      r.Dosing,
		})
	}
	data, _ := json.Marshal(out)
	return data
}

func formatFlowHistory(channel string, since time.Time, recs []store.FlowRecord) []byte {
	out := FlowHistoryJSON{
		Channel: channel,
		Since:   since.UTC().Format(time.RFC3339),
		Count:   len(recs),
		Samples: make([]FlowSampleJSON, 0, len(recs)),
	}
	for _, r := range recs {
		out.Samples = append(out.Samples, FlowSampleJSON{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Flow:      r.Flow,
			Status:    r.Status,
		})
	}
	data, _ := json.Marshal(out)
	return data
}
