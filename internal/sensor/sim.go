package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/fermenter-controller/internal/flow"
)

// Plant model coefficients, per second.
const (
	ambientPull   = 0.0008
	fermentHeat   = 0.018
	fermentLift   = 4.0
	heaterRate    = 0.22
	coolerRate    = -0.28
	plantNoise    = 0.008
	plantMinTemp  = -5.0
	plantMaxTemp  = 40.0
	noiseBaseTemp = 20.0
)

// SimThermometer models each vessel as a first-order thermal plant: a pull towards
// ambient, self-heating from fermentation towards max(setpoint, ambient+4), a fixed
// heater and cooler contribution and a little noise.
type SimThermometer struct {
	mu     sync.Mutex
	rng    *rand.Rand
	vessel map[int]*plant
}

type plant struct {
	temp    float64
	ambient float64
	last    time.Time
}

// NewSimThermometer creates a simulated thermometer. A nil rng gets a time-seeded source.
func NewSimThermometer(rng *rand.Rand) *SimThermometer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimThermometer{rng: rng, vessel: make(map[int]*plant)}
}

func (s *SimThermometer) plant(index int) *plant {
	p, ok := s.vessel[index]
	if !ok {
		p = &plant{
			temp:    21.5 + (s.rng.Float64()*2-1)*0.3,
			ambient: 21.0 + (s.rng.Float64()*2-1)*0.4,
		}
		s.vessel[index] = p
	}
	return p
}

// Advance integrates the plant from the previous call to now.
func (s *SimThermometer) Advance(index int, now time.Time, setpoint float64, cold, hot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.plant(index)
	if p.last.IsZero() {
		p.last = now
		return
	}
	dt := now.Sub(p.last).Seconds()
	p.last = now
	if dt <= 0 {
		return
	}

	delta := (p.ambient - p.temp) * ambientPull
	delta += (math.Max(setpoint, p.ambient+fermentLift) - p.temp) * fermentHeat
	if hot {
		delta += heaterRate
	}
	if cold {
		delta += coolerRate
	}
	delta += (s.rng.Float64()*2 - 1) * plantNoise
	p.temp = math.Max(plantMinTemp, math.Min(plantMaxTemp, p.temp+delta*dt))
}

// Read returns the current plant temperature.
func (s *SimThermometer) Read(index int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plant(index).temp, nil
}

// NoiseThermometer stands in for missing probes: each index reads a fixed bias around
// 20 °C with ±0.5 °C of noise.
type NoiseThermometer struct {
	mu   sync.Mutex
	rng  *rand.Rand
	bias map[int]float64
}

// NewNoiseThermometer creates a noise thermometer. A nil rng gets a time-seeded source.
func NewNoiseThermometer(rng *rand.Rand) *NoiseThermometer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &NoiseThermometer{rng: rng, bias: make(map[int]float64)}
}

func (n *NoiseThermometer) Read(index int) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.bias[index]
	if !ok {
		b = n.rng.Float64()*2 - 1
		n.bias[index] = b
	}
	return noiseBaseTemp + b + (n.rng.Float64()*2-1)*0.5, nil
}

// SimAnalog produces flow-meter voltages from a flow.Simulator.
type SimAnalog struct {
	sim *flow.Simulator
	now func() time.Time
}

// NewSimAnalog wraps sim; now supplies the sampling instant.
func NewSimAnalog(sim *flow.Simulator, now func() time.Time) *SimAnalog {
	return &SimAnalog{sim: sim, now: now}
}

func (a *SimAnalog) ReadVoltage() (float64, error) {
	return a.sim.Voltage(a.now()), nil
}

func (a *SimAnalog) Close() error { return nil }
