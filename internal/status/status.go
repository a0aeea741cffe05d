// Package status provides a thread-safe snapshot of controller state for read-only
// consumers: the HTTP status page and MQTT lifecycle events. Only the control loop writes.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state as reported by the host helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs    int64
	Broker    string
	HTTPAddr  string
	RunID     string
	Simulator bool
}

// Vessel is the control state of one fermenter after the last tick.
type Vessel struct {
	Name         string
	Temperature  float64
	TempFallback bool
	Setpoint     float64
	Band         float64
	Manual       bool
	Cold         bool
	Hot          bool
	Dosing       bool
	DosingUntil  time.Time
	ManualPump   bool
	PumpFreq     float64
	Recording    string
}

// FlowChannel is the last sample of one flow meter.
type FlowChannel struct {
	Name       string
	Flow       float64
	CurrentMA  float64
	Voltage    float64
	Status     string
	MassRate   float64
	LastSample time.Time
	NextDue    time.Time
	Period     time.Duration
	Samples    int
	Recording  string
}

// History summarises the last backup load requested for a vessel.
type History struct {
	Channel     string
	Since       time.Time
	LoadedAt    time.Time
	ThermalRows int
	FlowRows    int
	MeanTemp    float64
	MeanFlow    float64
	Err         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Vessels       []Vessel
	Flows         []FlowChannel
	History       []History
	Mode          string
	LastTick      time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Vessel returns the named vessel.
func (s Snapshot) Vessel(name string) (Vessel, bool) {
	for _, v := range s.Vessels {
		if v.Name == name {
			return v, true
		}
	}
	return Vessel{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces vessel and flow state. Called from the run loop after every tick.
// The slices are copied.
func (t *Tracker) Update(at time.Time, vessels []Vessel, flows []FlowChannel) {
	v := append([]Vessel(nil), vessels...)
	f := append([]FlowChannel(nil), flows...)
	t.mu.Lock()
	t.snap.LastTick = at
	t.snap.Vessels = v
	t.snap.Flows = f
	t.mu.Unlock()
}

// SetHistory stores a history summary, replacing any earlier one for the same channel.
func (t *Tracker) SetHistory(h History) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]History, 0, len(t.snap.History)+1)
	for _, old := range t.snap.History {
		if old.Channel != h.Channel {
			out = append(out, old)
		}
	}
	t.snap.History = append(out, h)
}

// SetMode sets the hardware mode summary.
func (t *Tracker) SetMode(mode string) {
	t.mu.Lock()
	t.snap.Mode = mode
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.History = append([]History(nil), t.snap.History...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
