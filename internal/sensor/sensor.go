// Package sensor reads vessel temperatures and flow-meter shunt voltages.
// Real implementations talk to DS18B20 probes over 1-Wire sysfs and to an ADS1115 over
// I2C; simulated implementations let the daemon run without hardware.
package sensor

import (
	"errors"
	"time"
)

// ErrNoDevice is returned when no probe is available for a reading.
var ErrNoDevice = errors.New("sensor: no device")

// Thermometer reads the temperature of a vessel, addressed by its probe index.
type Thermometer interface {
	Read(index int) (float64, error)
}

// Plant is implemented by simulated thermometers that model the vessel's response to its
// actuators. The control loop advances it once per tick before reading.
type Plant interface {
	Advance(index int, now time.Time, setpoint float64, cold, hot bool)
}

// Analog reads one flow-meter shunt voltage.
type Analog interface {
	ReadVoltage() (float64, error)
	Close() error
}

// ProbeResult is the outcome of a startup check of an analog channel.
type ProbeResult struct {
	Voltage float64
	InRange bool
	Err     error
}

// Probe takes one reading and checks it against the expected loop window.
func Probe(a Analog, lo, hi float64) ProbeResult {
	v, err := a.ReadVoltage()
	if err != nil {
		return ProbeResult{Err: err}
	}
	return ProbeResult{Voltage: v, InRange: v >= lo && v <= hi}
}
