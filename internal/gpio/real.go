//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives relays and steppers on actual Raspberry Pi hardware.
type RealDriver struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	relays map[int]*gpiocdev.Line
	pumps  map[int]*pumpLines

	// OnError receives failures raised by background pulse trains.
	OnError func(error)
}

type pumpLines struct {
	pulse *gpiocdev.Line
	dir   *gpiocdev.Line
	stop  chan struct{}
	done  chan struct{}
}

// NewRealDriver opens the named GPIO chip, e.g. "gpiochip0".
func NewRealDriver(chipName string) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealDriver{
		chip:   chip,
		relays: make(map[int]*gpiocdev.Line),
		pumps:  make(map[int]*pumpLines),
	}, nil
}

// SetRelay requests the relay line on first use (idle high) and sets its level.
func (d *RealDriver) SetRelay(pin int, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	line, ok := d.relays[pin]
	if !ok {
		var err error
		line, err = d.chip.RequestLine(pin, gpiocdev.AsOutput(RelayOff))
		if err != nil {
			return fmt.Errorf("request relay pin %d: %w", pin, err)
		}
		d.relays[pin] = line
	}

	level := RelayOff
	if on {
		level = RelayOn
	}
	if err := line.SetValue(level); err != nil {
		return fmt.Errorf("set relay pin %d: %w", pin, err)
	}
	return nil
}

// ConfigurePump requests the pulse and direction lines, both low.
func (d *RealDriver) ConfigurePump(id, pulsePin, dirPin int, _ float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pumps[id]; ok {
		return nil
	}
	pulse, err := d.chip.RequestLine(pulsePin, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("request pulse pin %d: %w", pulsePin, err)
	}
	dir, err := d.chip.RequestLine(dirPin, gpiocdev.AsOutput(0))
	if err != nil {
		pulse.Close()
		return fmt.Errorf("request dir pin %d: %w", dirPin, err)
	}
	d.pumps[id] = &pumpLines{pulse: pulse, dir: dir}
	return nil
}

// DrivePump restarts the pulse train of a stepper at freq Hz with direction high.
func (d *RealDriver) DrivePump(id int, freq float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pumps[id]
	if !ok {
		return fmt.Errorf("pump %d not configured", id)
	}
	p.halt()
	if err := p.dir.SetValue(1); err != nil {
		return fmt.Errorf("set pump %d direction: %w", id, err)
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go d.pulseTrain(id, p.pulse, PulseFreq(freq), p.stop, p.done)
	return nil
}

// StopPump halts the pulse train and drops the direction line.
func (d *RealDriver) StopPump(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pumps[id]
	if !ok {
		return fmt.Errorf("pump %d not configured", id)
	}
	p.halt()
	if err := p.dir.SetValue(0); err != nil {
		return fmt.Errorf("clear pump %d direction: %w", id, err)
	}
	return nil
}

// pulseTrain emits one short high pulse per period until stop is closed.
func (d *RealDriver) pulseTrain(id int, line *gpiocdev.Line, hz int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			line.SetValue(0)
			return
		case <-ticker.C:
			err := line.SetValue(1)
			if err == nil {
				err = line.SetValue(0)
			}
			if err != nil {
				// Reported asynchronously: the receiver may call back into the driver.
				if d.OnError != nil {
					go d.OnError(fmt.Errorf("pulse pump %d: %w", id, err))
				}
				return
			}
		}
	}
}

func (p *pumpLines) halt() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
}

// Close stops every pump, switches every relay off and releases all lines.
func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for id, p := range d.pumps {
		p.halt()
		if err := p.dir.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear pump %d direction: %w", id, err))
		}
		if err := p.pulse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pump %d pulse: %w", id, err))
		}
		if err := p.dir.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pump %d dir: %w", id, err))
		}
	}
	d.pumps = map[int]*pumpLines{}

	for pin, line := range d.relays {
		if err := line.SetValue(RelayOff); err != nil {
			errs = append(errs, fmt.Errorf("release relay pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin %d: %w", pin, err))
		}
	}
	d.relays = map[int]*gpiocdev.Line{}

	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}
	return errors.Join(errs...)
}
