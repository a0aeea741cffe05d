package sensor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// ADS1115 registers and config bits.
const (
	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	adsOSSingle     uint16 = 0x8000
	adsModeSingle   uint16 = 0x0100
	adsDataRate860  uint16 = 0x00E0
	adsCompQueueOff uint16 = 0x0003

	adsConvTimeout  = 50 * time.Millisecond
	adsConvPollWait = 2 * time.Millisecond
)

// DefaultADSAddress is the ADS1115 address with ADDR tied to GND.
const DefaultADSAddress = 0x48

var adsMux = [4]uint16{0x4000, 0x5000, 0x6000, 0x7000}

type adsGain struct {
	config    uint16
	fullScale float64
}

var adsGains = map[float64]adsGain{
	2.0 / 3: {0x0000, 6.144},
	1:       {0x0200, 4.096},
	2:       {0x0400, 2.048},
	4:       {0x0600, 1.024},
	8:       {0x0800, 0.512},
	16:      {0x0A00, 0.256},
}

// Bus is the subset of an I2C bus used by the ADS1115. the i2c.Bus from
// github.com/reef-pi/rpi/i2c satisfies it.
type Bus interface {
	ReadFromReg(addr, reg byte, value []byte) error
	WriteToReg(addr, reg byte, value []byte) error
}

// ADS1115 is one converter on the bus. Conversions are serialised across its channels.
type ADS1115 struct {
	mu    sync.Mutex
	bus   Bus
	addr  byte
	gain  adsGain
	sleep func(time.Duration)
}

// NewADS1115 returns a converter at addr with the given PGA gain (2/3, 1, 2, 4, 8 or 16).
func NewADS1115(bus Bus, addr byte, gain float64) (*ADS1115, error) {
	g, ok := adsGains[gain]
	if !ok {
		return nil, fmt.Errorf("ads1115: unsupported gain %v", gain)
	}
	return &ADS1115{bus: bus, addr: addr, gain: g, sleep: time.Sleep}, nil
}

// Channel returns the single-ended input AIN0..AIN3.
func (a *ADS1115) Channel(n int) (*ADSChannel, error) {
	if n < 0 || n >= len(adsMux) {
		return nil, fmt.Errorf("ads1115: no channel %d", n)
	}
	return &ADSChannel{dev: a, ch: n}, nil
}

// ADSChannel is one single-ended input. It implements Analog.
type ADSChannel struct {
	dev *ADS1115
	ch  int
}

// ReadVoltage runs a single-shot conversion and scales it to volts.
func (c *ADSChannel) ReadVoltage() (float64, error) {
	raw, err := c.dev.convert(adsMux[c.ch])
	if err != nil {
		return 0, fmt.Errorf("ads1115 0x%02X AIN%d: %w", c.dev.addr, c.ch, err)
	}
	return float64(raw) * c.dev.gain.fullScale / 32768, nil
}

func (c *ADSChannel) Close() error { return nil }

func (a *ADS1115) convert(mux uint16) (int16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := adsOSSingle | adsModeSingle | adsDataRate860 | adsCompQueueOff | mux | a.gain.config
	if err := a.bus.WriteToReg(a.addr, adsRegConfig, []byte{byte(cfg >> 8), byte(cfg)}); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}

	buf := make([]byte, 2)
	waited := time.Duration(0)
	for {
		if err := a.bus.ReadFromReg(a.addr, adsRegConfig, buf); err != nil {
			return 0, fmt.Errorf("read config: %w", err)
		}
		if binary.BigEndian.Uint16(buf)&adsOSSingle != 0 {
			break
		}
		if waited >= adsConvTimeout {
			return 0, fmt.Errorf("conversion timeout")
		}
		a.sleep(adsConvPollWait)
		waited += adsConvPollWait
	}

	if err := a.bus.ReadFromReg(a.addr, adsRegConversion, buf); err != nil {
		return 0, fmt.Errorf("read conversion: %w", err)
	}
	return int16(binary.BigEndian.Uint16(buf)), nil
}
