// Package hardware tracks which capabilities run against real devices and which have
// been replaced by simulation. A Mode is created once at startup and shared by pointer;
// degradation is sticky for the life of the process.
package hardware

import (
	"fmt"
	"strings"
	"sync"
)

// Capability names a hardware concern.
type Capability string

const (
	Actuators   Capability = "actuators"
	Thermometer Capability = "thermometer"
	Analog      Capability = "analog"
)

// Mode records per-capability simulation state.
type Mode struct {
	mu        sync.Mutex
	forced    bool
	simulated map[Capability]string
}

// NewMode returns a mode. When forced is true every capability is simulated from the start.
func NewMode(forced bool) *Mode {
	m := &Mode{forced: forced, simulated: make(map[Capability]string)}
	if forced {
		for _, c := range []Capability{Actuators, Thermometer, Analog} {
			m.simulated[c] = "simulator requested"
		}
	}
	return m
}

// Forced reports whether simulation was requested by configuration.
func (m *Mode) Forced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

// Simulated reports whether a capability is simulated.
func (m *Mode) Simulated(c Capability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.simulated[c]
	return ok
}

// Degrade marks a capability as simulated. It returns true only the first time, so the
// caller can log the fallback exactly once.
func (m *Mode) Degrade(c Capability, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.simulated[c]; ok {
		return false
	}
	m.simulated[c] = reason
	return true
}

// Reason returns why a capability is simulated, or "" when it is real.
func (m *Mode) Reason(c Capability) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.simulated[c]
}

// Summary renders the mode for logs and the status page.
func (m *Mode) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.simulated) == 0 {
		return "hardware"
	}
	if m.forced {
		return "simulator"
	}
	parts := make([]string, 0, len(m.simulated))
	for _, c := range []Capability{Actuators, Thermometer, Analog} {
		if r, ok := m.simulated[c]; ok {
			parts = append(parts, fmt.Sprintf("%s simulated (%s)", c, r))
		}
	}
	return "degraded: " + strings.Join(parts, ", ")
}
