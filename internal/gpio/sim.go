package gpio

import (
	"sort"
	"sync"
)

// PumpState is the simulated state of one stepper.
type PumpState struct {
	Running bool
	Freq    float64
}

// Simulator is an in-memory Actuator. It keeps the last commanded output of every line so
// the daemon can run (and report) without hardware.
type Simulator struct {
	mu     sync.Mutex
	relays map[int]bool
	pumps  map[int]PumpState
	closed bool
}

// NewSimulator returns a simulator with every output off.
func NewSimulator() *Simulator {
	return &Simulator{relays: make(map[int]bool), pumps: make(map[int]PumpState)}
}

func (s *Simulator) SetRelay(pin int, on bool) {
	s.mu.Lock()
	s.relays[pin] = on
	s.mu.Unlock()
}

func (s *Simulator) ConfigurePump(id, _, _ int, baseFreq float64) {
	s.mu.Lock()
	if _, ok := s.pumps[id]; !ok {
		s.pumps[id] = PumpState{Freq: baseFreq}
	}
	s.mu.Unlock()
}

func (s *Simulator) DrivePump(id int, freq float64) {
	s.mu.Lock()
	s.pumps[id] = PumpState{Running: true, Freq: float64(PulseFreq(freq))}
	s.mu.Unlock()
}

func (s *Simulator) StopPump(id int) {
	s.mu.Lock()
	p := s.pumps[id]
	p.Running = false
	s.pumps[id] = p
	s.mu.Unlock()
}

// Close switches everything off.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pin := range s.relays {
		s.relays[pin] = false
	}
	for id, p := range s.pumps {
		p.Running = false
		s.pumps[id] = p
	}
	s.closed = true
	return nil
}

// Relay reports the last commanded state of a relay.
func (s *Simulator) Relay(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relays[pin]
}

// Pump reports the state of a stepper.
func (s *Simulator) Pump(id int) PumpState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumps[id]
}

// EnergisedRelays lists every relay currently on, ascending.
func (s *Simulator) EnergisedRelays() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for pin, on := range s.relays {
		if on {
			out = append(out, pin)
		}
	}
	sort.Ints(out)
	return out
}

// Closed reports whether Close was called.
func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
