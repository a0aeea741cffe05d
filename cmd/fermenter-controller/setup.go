package main

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/reef-pi/rpi/i2c"
	"github.com/sweeney/fermenter-controller/internal/calendar"
	"github.com/sweeney/fermenter-controller/internal/config"
	"github.com/sweeney/fermenter-controller/internal/controller"
	"github.com/sweeney/fermenter-controller/internal/flow"
	"github.com/sweeney/fermenter-controller/internal/gpio"
	"github.com/sweeney/fermenter-controller/internal/hardware"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/sensor"
	"github.com/sweeney/fermenter-controller/internal/store"
)

// devices holds the capabilities chosen at startup, one analog input per vessel.
type devices struct {
	mode        *hardware.Mode
	actuator    gpio.Actuator
	thermometer sensor.Thermometer
	analogs     []sensor.Analog
	closeBus    func()
}

// openHardware selects a real or simulated implementation for every capability. A device
// that cannot be opened is replaced by its simulation and recorded in the mode.
func openHardware(cfg *config.Config, start time.Time, log *logger.Logger) *devices {
	d := &devices{mode: hardware.NewMode(cfg.Simulator), closeBus: func() {}}
	rng := rand.New(rand.NewSource(start.UnixNano()))
	d.actuator = openActuator(cfg, d.mode, log.Named("gpio"))
	d.thermometer = openThermometer(cfg, d.mode, rng, log.Named("w1"))
	d.openAnalogs(cfg, start, rng, log.Named("ads1115"))
	return d
}

func openActuator(cfg *config.Config, mode *hardware.Mode, log *logger.Logger) gpio.Actuator {
	if mode.Forced() {
		return gpio.NewSimulator()
	}
	drv, err := gpio.NewRealDriver(cfg.GPIO.Chip)
	if err != nil {
		if mode.Degrade(hardware.Actuators, err.Error()) {
			log.Errorw("gpio unavailable, simulating actuators", "chip", cfg.GPIO.Chip, "error", err)
		}
		return gpio.NewFallback(nil, mode, log)
	}
	fb := gpio.NewFallback(drv, mode, log)
	drv.OnError = fb.Fail
	return fb
}

func openThermometer(cfg *config.Config, mode *hardware.Mode, rng *rand.Rand, log *logger.Logger) sensor.Thermometer {
	if mode.Forced() {
		return sensor.NewSimThermometer(rng)
	}
	w1, err := sensor.NewW1Thermometer(cfg.Paths.W1Devices)
	if err == nil && w1.Count() > 0 {
		log.Infow("temperature probes found", "count", w1.Count(), "devices", w1.Devices())
		return w1
	}
	reason := "no DS18B20 probes found"
	if err != nil {
		reason = err.Error()
	}
	if mode.Degrade(hardware.Thermometer, reason) {
		log.Warnw("temperature probes unavailable, using noise source", "dir", cfg.Paths.W1Devices, "reason", reason)
	}
	return sensor.NewNoiseThermometer(rng)
}

func (d *devices) openAnalogs(cfg *config.Config, start time.Time, rng *rand.Rand, log *logger.Logger) {
	simulate := func() {
		d.analogs = d.analogs[:0]
		for _, f := range cfg.Fermenters {
			sim := flow.NewSimulator(calibration(cfg, f), start, rng)
			d.analogs = append(d.analogs, sensor.NewSimAnalog(sim, time.Now))
		}
	}
	if d.mode.Forced() {
		simulate()
		return
	}

	bus, err := i2c.New()
	if err != nil {
		if d.mode.Degrade(hardware.Analog, err.Error()) {
			log.Warnw("i2c unavailable, simulating flow meters", "error", err)
		}
		simulate()
		return
	}

	adcs := make(map[int]*sensor.ADS1115)
	for _, f := range cfg.Fermenters {
		adc, ok := adcs[f.ADSAddress]
		if !ok {
			adc, err = sensor.NewADS1115(bus, byte(f.ADSAddress), f.ADSGain)
			if err != nil {
				break
			}
			adcs[f.ADSAddress] = adc
		}
		var ch *sensor.ADSChannel
		if ch, err = adc.Channel(f.ADSChannel); err != nil {
			break
		}
		d.analogs = append(d.analogs, ch)
	}
	if err != nil {
		bus.Close()
		if d.mode.Degrade(hardware.Analog, err.Error()) {
			log.Warnw("ads1115 setup failed, simulating flow meters", "error", err)
		}
		simulate()
		return
	}
	d.closeBus = func() {
		if err := bus.Close(); err != nil {
			log.Warnw("close i2c bus", "error", err)
		}
	}

	for i, f := range cfg.Fermenters {
		lo, hi := calibration(cfg, f).ExpectedVoltage()
		res := sensor.Probe(d.analogs[i], lo, hi)
		switch {
		case res.Err != nil:
			log.Warnw("flow meter probe failed", "channel", f.Name, "ain", f.ADSChannel, "error", res.Err)
		case !res.InRange:
			log.Warnw("flow meter outside 4-20 mA window", "channel", f.Name, "voltage", res.Voltage, "min", lo, "max", hi)
		default:
			log.Infow("flow meter ok", "channel", f.Name, "voltage", res.Voltage)
		}
	}
}

func calibration(cfg *config.Config, f config.FermenterConfig) flow.Calibration {
	return flow.Calibration{ShuntOhms: f.ShuntOhms, FlowMin: cfg.Flow.Min, FlowMax: cfg.Flow.Max}
}

// stores holds the optional persistence backends. A backend that fails to open is left
// nil and the daemon runs without it.
type stores struct {
	calendars  *calendar.BoltStore
	timeSeries *store.TimeSeries
	runID      string
	log        *logger.Logger
}

func openStores(cfg *config.Config, log *logger.Logger) *stores {
	s := &stores{log: log}

	cals, err := calendar.OpenBoltStore(cfg.Paths.CalendarDB)
	if err != nil {
		log.Warnw("calendar store unavailable, edits will not persist", "path", cfg.Paths.CalendarDB, "error", err)
	} else {
		s.calendars = cals
	}

	ts, err := store.OpenTimeSeries(cfg.Paths.TimeSeriesDB)
	if err != nil {
		log.Warnw("time-series store unavailable", "path", cfg.Paths.TimeSeriesDB, "error", err)
		s.runID = uuid.NewString()
	} else {
		s.timeSeries = ts
		s.runID = ts.RunID()
	}
	return s
}

// loadCalendar returns the stored calendar, or nil (empty) when there is none.
func (s *stores) loadCalendar(channel string, kind calendar.Kind) *calendar.Calendar {
	if s.calendars == nil {
		return nil
	}
	cal, err := s.calendars.Load(channel, kind)
	if err != nil {
		s.log.Warnw("load calendar", "channel", channel, "kind", kind, "error", err)
		return nil
	}
	return cal
}

func (s *stores) close() {
	if s.calendars != nil {
		if err := s.calendars.Close(); err != nil {
			s.log.Warnw("close calendar store", "error", err)
		}
	}
	if s.timeSeries != nil {
		if err := s.timeSeries.Close(); err != nil {
			s.log.Warnw("close time-series store", "error", err)
		}
	}
}

func addVessels(ctrl *controller.Controller, cfg *config.Config, d *devices, s *stores, log *logger.Logger) {
	for i, f := range cfg.Fermenters {
		ctrl.AddFermenter(controller.FermenterSpec{
			Name:      f.Name,
			ColdPin:   f.ColdPin,
			HotPin:    f.HotPin,
			PulsePin:  f.PulsePin,
			DirPin:    f.DirPin,
			Sensor:    f.Sensor,
			Setpoint:  cfg.Control.Setpoint,
			Band:      cfg.Control.Band,
			PumpFreq:  cfg.Control.PumpFreq,
			Setpoints: s.loadCalendar(f.Name, calendar.Setpoint),
			Doses:     s.loadCalendar(f.Name, calendar.Dosing),
		})
		ctrl.AddFlowChannel(controller.FlowSpec{
			Name:   f.Name,
			Cal:    calibration(cfg, f),
			Period: cfg.SamplePeriod(f, d.mode.Simulated(hardware.Analog)),
			Reader: d.analogs[i],
		})
		log.Debugw("vessel configured", "channel", f.Name, "cold_pin", f.ColdPin, "hot_pin", f.HotPin, "probe", f.Sensor)
	}
}

// printReadings takes one temperature and one flow reading per vessel.
func printReadings(w io.Writer, cfg *config.Config, d *devices) error {
	fmt.Fprintf(w, "mode: %s\n", d.mode.Summary())
	for i, f := range cfg.Fermenters {
		temp := "unavailable"
		if t, err := d.thermometer.Read(f.Sensor); err == nil {
			temp = fmt.Sprintf("%.1f °C", t)
		}
		reading := "unavailable"
		if v, err := d.analogs[i].ReadVoltage(); err == nil {
			r := calibration(cfg, f).Convert(v)
			reading = fmt.Sprintf("%.2f SCCM (%.2f mA, %s)", r.Flow, r.CurrentMA, r.Status)
		}
		fmt.Fprintf(w, "%s: %s, %s\n", f.Name, temp, reading)
	}
	return nil
}
