//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealDriver is not available on non-Linux platforms.
type RealDriver struct {
	OnError func(error)
}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(string) (*RealDriver, error) {
	return nil, errUnsupported
}

func (d *RealDriver) SetRelay(int, bool) error                   { return errUnsupported }
func (d *RealDriver) ConfigurePump(int, int, int, float64) error { return errUnsupported }
func (d *RealDriver) DrivePump(int, float64) error               { return errUnsupported }
func (d *RealDriver) StopPump(int) error                         { return errUnsupported }
func (d *RealDriver) Close() error                               { return nil }
