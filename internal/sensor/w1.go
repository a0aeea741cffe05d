package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultW1Dir is where the kernel exposes 1-Wire slaves.
const DefaultW1Dir = "/sys/bus/w1/devices"

// W1Thermometer reads DS18B20 probes through the w1_therm sysfs interface.
// Probes are ordered by device id; index i maps to the i-th probe and indexes past the
// end map to the last one.
type W1Thermometer struct {
	devices []string
}

// NewW1Thermometer discovers probes under dir. An empty discovery is not an error; use
// Count to decide whether to fall back.
func NewW1Thermometer(dir string) (*W1Thermometer, error) {
	if dir == "" {
		dir = DefaultW1Dir
	}
	devices, err := filepath.Glob(filepath.Join(dir, "28-*"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(devices)
	return &W1Thermometer{devices: devices}, nil
}

// Count returns the number of discovered probes.
func (w *W1Thermometer) Count() int {
	return len(w.devices)
}

// Devices returns the discovered device directories.
func (w *W1Thermometer) Devices() []string {
	out := make([]string, len(w.devices))
	copy(out, w.devices)
	return out
}

// Read returns the temperature in °C of probe index.
func (w *W1Thermometer) Read(index int) (float64, error) {
	if len(w.devices) == 0 {
		return 0, ErrNoDevice
	}
	if index >= len(w.devices) {
		index = len(w.devices) - 1
	}
	if index < 0 {
		index = 0
	}
	dev := w.devices[index]

	data, err := os.ReadFile(filepath.Join(dev, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(dev), err)
	}
	return parseW1Slave(string(data))
}

// parseW1Slave decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 || !strings.Contains(lines[0], "YES") {
		return 0, fmt.Errorf("w1: bad crc")
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("w1: no temperature field")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("w1: parse temperature: %w", err)
	}
	return float64(milli) / 1000, nil
}
