package flow

import (
	"math"
	"math/rand"
	"time"
)

// Pulse time constants in hours.
const (
	riseHours  = 0.2
	decayHours = 4.0
	jitterSCCM = 0.3
)

// Simulator produces a synthetic shunt voltage following a fermentation-shaped CO2 pulse:
// a fast rise, a peak at FlowMax and a slow exponential decay. The voltage is meant to be
// fed through Calibration.Convert like a real reading.
type Simulator struct {
	cal   Calibration
	start time.Time
	rng   *rand.Rand

	tr, td float64
	amp    float64
}

// NewSimulator creates a simulator whose elapsed time counts from start.
// A nil rng gets a time-seeded source.
func NewSimulator(cal Calibration, start time.Time, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	tr, td := riseHours, decayHours
	if td <= tr {
		td = tr + 0.1
	}
	tPeak := tr * td / (td - tr) * math.Log(td/tr)
	shape := math.Exp(-tPeak/td) - math.Exp(-tPeak/tr)
	if shape <= 0 {
		shape = 1
	}
	return &Simulator{
		cal:   cal,
		start: start,
		rng:   rng,
		tr:    tr,
		td:    td,
		amp:   cal.FlowMax / shape,
	}
}

// PeakTime returns the elapsed time at which the noiseless curve peaks.
func (s *Simulator) PeakTime() time.Duration {
	h := s.tr * s.td / (s.td - s.tr) * math.Log(s.td/s.tr)
	return time.Duration(h * float64(time.Hour))
}

// Curve returns the noiseless flow at an elapsed duration.
func (s *Simulator) Curve(elapsed time.Duration) float64 {
	t := elapsed.Hours()
	if t < 0 {
		t = 0
	}
	return s.amp * (math.Exp(-t/s.td) - math.Exp(-t/s.tr))
}

// Flow returns the jittered flow at now, clamped to the meter span.
func (s *Simulator) Flow(now time.Time) float64 {
	f := s.Curve(now.Sub(s.start)) + (s.rng.Float64()*2-1)*jitterSCCM
	return clamp(f, s.cal.FlowMin, s.cal.FlowMax)
}

// Voltage returns the shunt voltage that a real meter would produce for Flow(now).
func (s *Simulator) Voltage(now time.Time) float64 {
	f := s.Flow(now)
	i := LoopMin
	if s.cal.FlowMax > s.cal.FlowMin {
		i = LoopMin + (f-s.cal.FlowMin)*(LoopMax-LoopMin)/(s.cal.FlowMax-s.cal.FlowMin)
	}
	i = clamp(i, LoopMin, LoopMax)
	return i / 1000 * s.cal.ShuntOhms
}
