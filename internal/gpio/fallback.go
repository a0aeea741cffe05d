package gpio

import (
	"sync"

	"github.com/sweeney/fermenter-controller/internal/hardware"
	"github.com/sweeney/fermenter-controller/internal/logger"
)

// Fallback turns a Driver into an Actuator. Every command is mirrored into a Simulator;
// the first driver error switches the actuators to simulation for the rest of the run.
type Fallback struct {
	mu   sync.Mutex
	drv  Driver
	sim  *Simulator
	mode *hardware.Mode
	log  *logger.Logger
}

// NewFallback wraps drv. A nil drv starts in simulation.
func NewFallback(drv Driver, mode *hardware.Mode, log *logger.Logger) *Fallback {
	return &Fallback{drv: drv, sim: NewSimulator(), mode: mode, log: log}
}

// State exposes the commanded outputs.
func (f *Fallback) State() *Simulator {
	return f.sim
}

// Degraded reports whether the real driver has been dropped.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv == nil
}

// Fail drops the real driver. It is safe to call from any goroutine and is meant as the
// driver's asynchronous error hook.
func (f *Fallback) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degrade(err)
}

func (f *Fallback) degrade(err error) {
	drv := f.drv
	if drv == nil {
		return
	}
	f.drv = nil
	if f.mode.Degrade(hardware.Actuators, err.Error()) {
		f.log.Errorw("actuator failure, continuing with simulated outputs", "error", err)
	}
	// Releasing lines may wait on pulse goroutines that report through Fail.
	go func() {
		if cerr := drv.Close(); cerr != nil {
			f.log.Warnw("release actuator lines", "error", cerr)
		}
	}()
}

func (f *Fallback) apply(fn func(Driver) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drv == nil {
		return
	}
	if err := fn(f.drv); err != nil {
		f.degrade(err)
	}
}

func (f *Fallback) SetRelay(pin int, on bool) {
	f.sim.SetRelay(pin, on)
	f.apply(func(d Driver) error { return d.SetRelay(pin, on) })
}

func (f *Fallback) ConfigurePump(id, pulsePin, dirPin int, baseFreq float64) {
	f.sim.ConfigurePump(id, pulsePin, dirPin, baseFreq)
	f.apply(func(d Driver) error { return d.ConfigurePump(id, pulsePin, dirPin, baseFreq) })
}

func (f *Fallback) DrivePump(id int, freq float64) {
	f.sim.DrivePump(id, freq)
	f.apply(func(d Driver) error { return d.DrivePump(id, freq) })
}

func (f *Fallback) StopPump(id int) {
	f.sim.StopPump(id)
	f.apply(func(d Driver) error { return d.StopPump(id) })
}

// Close releases the real driver, if still held.
func (f *Fallback) Close() error {
	f.sim.Close()
	f.mu.Lock()
	drv := f.drv
	f.drv = nil
	f.mu.Unlock()
	if drv == nil {
		return nil
	}
	return drv.Close()
}
