package gpio

import (
	"fmt"
	"sync"
)

// FakeDriver is a test double that records every call and can fail on demand.
type FakeDriver struct {
	mu sync.Mutex

	// Calls lists the invoked operations, e.g. "relay 7 on", "drive 0 1000".
	Calls []string

	// FailAfter, when positive, makes every call after the first FailAfter calls fail.
	FailAfter int

	// Err is returned by failing calls.
	Err error

	// Closed tracks if Close was called.
	Closed bool

	// OnError mirrors RealDriver.OnError for asynchronous failures.
	OnError func(error)
}

// NewFakeDriver creates a FakeDriver that never fails.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

func (f *FakeDriver) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
	if f.FailAfter > 0 && len(f.Calls) > f.FailAfter {
		return f.Err
	}
	return nil
}

func (f *FakeDriver) SetRelay(pin int, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	return f.record("relay %d %s", pin, state)
}

func (f *FakeDriver) ConfigurePump(id, pulsePin, dirPin int, baseFreq float64) error {
	return f.record("configure %d %d %d", id, pulsePin, dirPin)
}

func (f *FakeDriver) DrivePump(id int, freq float64) error {
	return f.record("drive %d %d", id, PulseFreq(freq))
}

func (f *FakeDriver) StopPump(id int) error {
	return f.record("stop %d", id)
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// CallLog returns a copy of the recorded calls.
func (f *FakeDriver) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}

// IsClosed reports whether Close was called.
func (f *FakeDriver) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}
