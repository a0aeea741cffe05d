package hardware

import (
	"strings"
	"sync"
	"testing"
)

func TestForcedModeSimulatesEverything(t *testing.T) {
	m := NewMode(true)
	for _, c := range []Capability{Actuators, Thermometer, Analog} {
		if !m.Simulated(c) {
			t.Errorf("%s should be simulated", c)
		}
	}
	if got := m.Summary(); got != "simulator" {
		t.Errorf("Summary = %q", got)
	}
}

func TestDegradeIsStickyAndReportsOnce(t *testing.T) {
	m := NewMode(false)
	if m.Simulated(Actuators) {
		t.Fatal("fresh mode should be real")
	}
	if got := m.Summary(); got != "hardware" {
		t.Errorf("Summary = %q", got)
	}

	if !m.Degrade(Actuators, "gpiochip0: permission denied") {
		t.Error("first degrade should report true")
	}
	if m.Degrade(Actuators, "again") {
		t.Error("second degrade should report false")
	}
	if got := m.Reason(Actuators); got != "gpiochip0: permission denied" {
		t.Errorf("Reason = %q", got)
	}
	if !strings.Contains(m.Summary(), "actuators simulated") {
		t.Errorf("Summary = %q", m.Summary())
	}
	if m.Simulated(Analog) {
		t.Error("other capabilities must stay real")
	}
}

func TestDegradeConcurrentOnlyOneWinner(t *testing.T) {
	m := NewMode(false)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Degrade(Thermometer, "x") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
