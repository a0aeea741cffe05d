// Package gpio drives the thermal relays and nutrient pump steppers.
// The real implementation uses the Linux GPIO character device.
// Simulator and FakeDriver allow running and testing without hardware.
package gpio

// Actuator is the fire-and-forget capability used by the control loop. Implementations
// never return errors to the caller; hardware failures are handled internally.
type Actuator interface {
	// SetRelay switches a relay on or off. The relay line is active-low.
	SetRelay(pin int, on bool)

	// ConfigurePump prepares the pulse and direction lines of stepper id.
	ConfigurePump(id, pulsePin, dirPin int, baseFreq float64)

	// DrivePump starts a pulse train of freq Hz (at least 1) on stepper id.
	DrivePump(id int, freq float64)

	// StopPump halts stepper id.
	StopPump(id int)

	// Close switches every output off and releases the lines.
	Close() error
}

// Driver is the error-returning device layer wrapped by Fallback.
type Driver interface {
	SetRelay(pin int, on bool) error
	ConfigurePump(id, pulsePin, dirPin int, baseFreq float64) error
	DrivePump(id int, freq float64) error
	StopPump(id int) error
	Close() error
}

// Relay line levels. Relay boards on the rig energise on a low input.
const (
	RelayOn  = 0
	RelayOff = 1
)

// PulseFreq clamps a requested pump frequency to a usable whole number of Hz.
func PulseFreq(freq float64) int {
	hz := int(freq)
	if hz < 1 {
		return 1
	}
	return hz
}
