package logic

import (
	"fmt"
	"math"
)

// Thermal is the per-vessel hysteresis controller.
//
// In automatic mode each Step applies, in order:
//
//	cold on  and T <= SP-band  -> cold off
//	cold off and T >= SP+band  -> cold on
//	hot  on  and T >= SP+band  -> hot off
//	hot  off and T <= SP-band  -> hot on
//
// Inside the band neither actuator changes. Cold and Hot are never both on.
type Thermal struct {
	Setpoint float64
	Band     float64
	Manual   bool

	state Actuators
}

// NewThermal returns an automatic controller with both actuators off.
func NewThermal(setpoint, band float64) *Thermal {
	return &Thermal{Setpoint: setpoint, Band: band}
}

// State returns the commanded actuator state.
func (t *Thermal) State() Actuators {
	return t.state
}

// EffectiveBand returns the band actually used by Step.
func (t *Thermal) EffectiveBand() float64 {
	return math.Max(MinBand, t.Band)
}

// Step runs one hysteresis evaluation for temp and reports whether the actuator state
// changed. It does nothing in manual mode.
func (t *Thermal) Step(temp float64) bool {
	if t.Manual || !finite(temp) {
		return false
	}
	prev := t.state
	band := t.EffectiveBand()
	hi, lo := t.Setpoint+band, t.Setpoint-band

	if t.state.Cold && temp <= lo {
		t.state.Cold = false
	} else if !t.state.Cold && temp >= hi {
		t.state.Cold = true
	}

	if t.state.Hot && temp >= hi {
		t.state.Hot = false
	} else if !t.state.Hot && temp <= lo {
		t.state.Hot = true
	}

	return t.state != prev
}

// ApplySetpoint takes a setpoint coming from the calendar. Ignored in manual mode.
func (t *Thermal) ApplySetpoint(sp float64) bool {
	if t.Manual || !finite(sp) || sp == t.Setpoint {
		return false
	}
	t.Setpoint = sp
	return true
}

// SetSetpoint is the operator edit of the setpoint.
func (t *Thermal) SetSetpoint(sp float64) error {
	if !finite(sp) {
		return fmt.Errorf("%w: setpoint %v", ErrInvalidInput, sp)
	}
	t.Setpoint = sp
	return nil
}

// SetBand is the operator edit of the hysteresis half-width.
func (t *Thermal) SetBand(band float64) error {
	if !finite(band) || band < MinBand {
		return fmt.Errorf("%w: band %v must be >= %.2f", ErrInvalidInput, band, MinBand)
	}
	t.Band = band
	return nil
}

// SetManual enables or disables manual override. Actuators keep their state.
func (t *Thermal) SetManual(on bool) {
	t.Manual = on
}

// ForceCold switches cooling on and heating off. Manual mode only.
func (t *Thermal) ForceCold() error {
	if !t.Manual {
		return ErrNotManual
	}
	t.state = Actuators{Cold: true}
	return nil
}

// ForceHot switches heating on and cooling off. Manual mode only.
func (t *Thermal) ForceHot() error {
	if !t.Manual {
		return ErrNotManual
	}
	t.state = Actuators{Hot: true}
	return nil
}

// CloseAll switches both actuators off without touching the mode.
func (t *Thermal) CloseAll() {
	t.state = Actuators{}
}

// StopAll is the safety stop: manual override on and both actuators off.
func (t *Thermal) StopAll() {
	t.Manual = true
	t.state = Actuators{}
}
