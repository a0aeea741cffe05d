// Package flow converts 4–20 mA current-loop readings from the CO2 flow meters into
// volumetric flow and classifies the loop health.
//
// The loop current is measured as a voltage across a shunt resistor:
//
//	I(mA) = V / R * 1000
//	flow  = min + (clamp(I, 4, 20) - 4) * (max - min) / 16
//
// The status is derived from the raw (unclamped) current, so a saturated value can still
// report "low range" or "high range".
package flow

// Loop current limits in mA.
const (
	LoopMin = 4.0
	LoopMax = 20.0

	// LowThreshold and HighThreshold bound a healthy loop; currents outside
	// are reported as out of range.
	LowThreshold  = 3.8
	HighThreshold = 20.5
)

// Status classifies a loop current.
type Status string

const (
	StatusOK   Status = "OK"
	StatusLow  Status = "low range"
	StatusHigh Status = "high range"
)

// Calibration describes one flow meter channel.
type Calibration struct {
	ShuntOhms float64
	FlowMin   float64
	FlowMax   float64
}

// Reading is a fully converted sample.
type Reading struct {
	Voltage   float64
	CurrentMA float64
	Flow      float64
	Status    Status
}

// VoltageToCurrent returns the loop current in mA for a shunt voltage.
func VoltageToCurrent(voltage, shuntOhms float64) float64 {
	return voltage / shuntOhms * 1000
}

// CurrentToFlow maps a loop current onto the meter span. A non-positive span yields 0.
func CurrentToFlow(currentMA, flowMin, flowMax float64) float64 {
	if flowMax <= flowMin {
		return 0
	}
	i := clamp(currentMA, LoopMin, LoopMax)
	return flowMin + (i-LoopMin)*(flowMax-flowMin)/(LoopMax-LoopMin)
}

// Classify reports the health of a raw loop current.
func Classify(currentMA float64) Status {
	switch {
	case currentMA < LowThreshold:
		return StatusLow
	case currentMA > HighThreshold:
		return StatusHigh
	default:
		return StatusOK
	}
}

// Convert runs the full voltage → current → flow pipeline.
func (c Calibration) Convert(voltage float64) Reading {
	i := VoltageToCurrent(voltage, c.ShuntOhms)
	return Reading{
		Voltage:   voltage,
		CurrentMA: i,
		Flow:      CurrentToFlow(i, c.FlowMin, c.FlowMax),
		Status:    Classify(i),
	}
}

// ExpectedVoltage returns the shunt voltage window of a healthy loop.
func (c Calibration) ExpectedVoltage() (lo, hi float64) {
	return LoopMin / 1000 * c.ShuntOhms, LoopMax / 1000 * c.ShuntOhms
}

// MassRate converts a CO2 flow in SCCM into a mass-transfer rate in g·L⁻¹·h⁻¹.
// 1 SCCM = 6e-5 m³/h. Returns 0 when density or broth volume is not positive.
func MassRate(flowSCCM, densityGPerM3, brothLitres float64) float64 {
	if densityGPerM3 <= 0 || brothLitres <= 0 {
		return 0
	}
	return flowSCCM * 6e-5 * densityGPerM3 / brothLitres
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
