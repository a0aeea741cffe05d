package sensor

import (
	"errors"
	"sync"
)

// FakeThermometer returns scripted temperatures per probe index.
type FakeThermometer struct {
	mu sync.Mutex

	// Temps holds the value returned for each index.
	Temps map[int]float64

	// Errs, if set for an index, is returned instead of a reading.
	Errs map[int]error

	// Reads counts calls per index.
	Reads map[int]int
}

// NewFakeThermometer creates a FakeThermometer with no readings.
func NewFakeThermometer() *FakeThermometer {
	return &FakeThermometer{Temps: map[int]float64{}, Errs: map[int]error{}, Reads: map[int]int{}}
}

// Set scripts the temperature for index and clears any error.
func (f *FakeThermometer) Set(index int, temp float64) {
	f.mu.Lock()
	f.Temps[index] = temp
	delete(f.Errs, index)
	f.mu.Unlock()
}

// Fail scripts an error for index.
func (f *FakeThermometer) Fail(index int, err error) {
	f.mu.Lock()
	f.Errs[index] = err
	f.mu.Unlock()
}

func (f *FakeThermometer) Read(index int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads[index]++
	if err := f.Errs[index]; err != nil {
		return 0, err
	}
	t, ok := f.Temps[index]
	if !ok {
		return 0, ErrNoDevice
	}
	return t, nil
}

// FakeAnalog returns scripted voltages. Each read consumes the next entry; the last one
// repeats.
type FakeAnalog struct {
	mu sync.Mutex

	Voltages []float64

	// Err, if set, is returned by ReadVoltage.
	Err error

	Reads  int
	Closed bool

	index int
}

// NewFakeAnalog creates a FakeAnalog with the given voltages.
func NewFakeAnalog(voltages ...float64) *FakeAnalog {
	return &FakeAnalog{Voltages: voltages}
}

func (f *FakeAnalog) ReadVoltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Voltages) == 0 {
		return 0, errors.New("no voltages configured")
	}
	v := f.Voltages[f.index]
	if f.index < len(f.Voltages)-1 {
		f.index++
	}
	return v, nil
}

func (f *FakeAnalog) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// ReadCount returns the number of ReadVoltage calls.
func (f *FakeAnalog) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads
}

// SetErr scripts a read error; nil clears it.
func (f *FakeAnalog) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}
