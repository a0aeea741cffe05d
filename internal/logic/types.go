// Package logic holds the pure control logic of a fermentation vessel: the thermal
// hysteresis state machine and the nutrient dosing timer. Nothing here touches hardware
// or the clock; callers pass the current time in.
package logic

import (
	"errors"
	"math"
)

// MinBand is the narrowest hysteresis half-width accepted, in °C. Below it the heating
// and cooling thresholds could coincide and both actuators switch on together.
const MinBand = 0.05

var (
	// ErrNotManual is returned when a forced actuation is requested outside manual mode.
	ErrNotManual = errors.New("logic: manual mode required")

	// ErrInvalidInput is returned when an operator value is rejected.
	ErrInvalidInput = errors.New("logic: invalid input")
)

// Actuators is the commanded state of a vessel's thermal actuators.
type Actuators struct {
	Cold bool
	Hot  bool
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
