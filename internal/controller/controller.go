// Package controller runs the fermentation control cycle. One Tick evaluates every vessel
// (calendars, dosing, temperature, hysteresis, relays, persistence) and then samples every
// flow meter that is due. The controller owns all live state; it is driven from a single
// goroutine and is not safe for concurrent use.
package controller

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/sweeney/fermenter-controller/internal/calendar"
	"github.com/sweeney/fermenter-controller/internal/flow"
	"github.com/sweeney/fermenter-controller/internal/gpio"
	"github.com/sweeney/fermenter-controller/internal/hardware"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/logic"
	"github.com/sweeney/fermenter-controller/internal/metrics"
	"github.com/sweeney/fermenter-controller/internal/mqtt"
	"github.com/sweeney/fermenter-controller/internal/sensor"
	"github.com/sweeney/fermenter-controller/internal/status"
	"github.com/sweeney/fermenter-controller/internal/store"
)

// FallbackTemperature is used for control while a probe cannot be read.
const FallbackTemperature = 20.0

const defaultWriteTimeout = 2 * time.Second

// TimeSeries is the optional SQLite mirror.
type TimeSeries interface {
	AppendThermal(ctx context.Context, r store.ThermalRecord) error
	AppendFlow(ctx context.Context, r store.FlowRecord) error
	AppendDosing(ctx context.Context, channel string, n store.NutritionSample) error
}

// CalendarStore persists calendars after operator edits.
type CalendarStore interface {
	Save(channel string, kind calendar.Kind, cal *calendar.Calendar) error
}

// HistoryLoader reads backup history off the control loop.
type HistoryLoader interface {
	Request(channel string, since time.Time) (uint64, error)
	Current(res store.LoadResult) bool
}

// Deps are the collaborators of a Controller. Actuator, Thermometer and Log are required.
type Deps struct {
	Actuator    gpio.Actuator
	Thermometer sensor.Thermometer
	Mode        *hardware.Mode
	Publisher   mqtt.Publisher
	TimeSeries  TimeSeries
	Calendars   CalendarStore
	Loader      HistoryLoader
	Metrics     *metrics.Recorder
	Log         *logger.Logger
}

// Options holds file locations and process constants.
type Options struct {
	ProcessDir    string
	ThermalBackup string
	FlowBackup    string
	Retention     time.Duration
	Density       float64
	BrothLitres   float64
	WriteTimeout  time.Duration
}

type sink int

const (
	sinkCSV sink = iota
	sinkTimeSeries
	sinkMQTT
	numSinks
)

var sinkNames = [numSinks]string{"csv", "timeseries", "mqtt"}

// Fermenter is one vessel: its controllers, calendars and outputs.
type Fermenter struct {
	Index   int
	Name    string
	ColdPin int
	HotPin  int
	Sensor  int
	Thermal *logic.Thermal
	Dosing  *logic.Dosing

	// Calendars driving the setpoint and the nutrient pump.
	SetpointCal *calendar.Calendar
	DoseCal     *calendar.Calendar

	Nutrition   *store.NutritionHistory
	Log         *store.ChannelLog
	Temperature float64

	tempFailing bool
	relays      logic.Actuators
	relaysKnown bool
	failing     [numSinks]bool
}

// FlowChannel is one flow meter with its own sampling period.
type FlowChannel struct {
	Index   int
	Name    string
	Cal     flow.Calibration
	Period  time.Duration
	NextDue time.Time
	Reader  sensor.Analog
	History *store.FlowHistory
	Log     *store.ChannelLog
	Last    store.FlowRecord

	readFailing bool
	failing     [numSinks]bool
}

// FermenterSpec describes a vessel to add.
type FermenterSpec struct {
	Name     string
	ColdPin  int
	HotPin   int
	PulsePin int
	DirPin   int
	Sensor   int
	Setpoint float64
	Band     float64
	PumpFreq float64

	// Calendars loaded at startup; nil starts empty.
	Setpoints *calendar.Calendar
	Doses     *calendar.Calendar
}

// FlowSpec describes a flow meter to add.
type FlowSpec struct {
	Name   string
	Cal    flow.Calibration
	Period time.Duration
	Reader sensor.Analog
}

// Controller owns the vessel and flow-meter arenas.
type Controller struct {
	fermenters []*Fermenter
	flows      []*FlowChannel

	act     gpio.Actuator
	therm   sensor.Thermometer
	mode    *hardware.Mode
	pub     mqtt.Publisher
	tsdb    TimeSeries
	cals    CalendarStore
	loader  HistoryLoader
	metrics *metrics.Recorder
	log     *logger.Logger

	opts          Options
	thermalBackup *store.CSVSink
	flowBackup    *store.CSVSink
}

// New creates a controller with no vessels.
func New(deps Deps, opts Options) *Controller {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = store.DefaultRetention
	}
	mode := deps.Mode
	if mode == nil {
		mode = hardware.NewMode(false)
	}
	return &Controller{
		act:           deps.Actuator,
		therm:         deps.Thermometer,
		mode:          mode,
		pub:           deps.Publisher,
		tsdb:          deps.TimeSeries,
		cals:          deps.Calendars,
		loader:        deps.Loader,
		metrics:       deps.Metrics,
		log:           deps.Log,
		opts:          opts,
		thermalBackup: store.NewCSVSink(opts.ThermalBackup, store.ThermalHeader),
		flowBackup:    store.NewCSVSink(opts.FlowBackup, store.FlowHeader),
	}
}

// AddFermenter registers a vessel, prepares its pump lines and switches its relays off.
// It returns the vessel's index.
func (c *Controller) AddFermenter(spec FermenterSpec) int {
	f := &Fermenter{
		Index:       len(c.fermenters),
		Name:        spec.Name,
		ColdPin:     spec.ColdPin,
		HotPin:      spec.HotPin,
		Sensor:      spec.Sensor,
		Thermal:     logic.NewThermal(spec.Setpoint, spec.Band),
		Dosing:      logic.NewDosing(spec.PumpFreq),
		SetpointCal: spec.Setpoints,
		DoseCal:     spec.Doses,
		Nutrition:   store.NewNutritionHistory(c.opts.Retention),
		Log:         store.NewChannelLog(filepath.Join(c.opts.ProcessDir, "Temp_"+spec.Name+".csv"), store.ThermalHeader),
		Temperature: FallbackTemperature,
	}
	if f.SetpointCal == nil {
		f.SetpointCal = calendar.New()
	}
	if f.DoseCal == nil {
		f.DoseCal = calendar.New()
	}
	c.fermenters = append(c.fermenters, f)

	c.act.ConfigurePump(f.Index, spec.PulsePin, spec.DirPin, spec.PumpFreq)
	c.applyRelays(f)
	return f.Index
}

// AddFlowChannel registers a flow meter and returns its index. It is sampled on the
// first tick.
func (c *Controller) AddFlowChannel(spec FlowSpec) int {
	ch := &FlowChannel{
		Index:   len(c.flows),
		Name:    spec.Name,
		Cal:     spec.Cal,
		Period:  spec.Period,
		Reader:  spec.Reader,
		History: store.NewFlowHistory(c.opts.Retention),
		Log:     store.NewChannelLog(filepath.Join(c.opts.ProcessDir, "CO2_"+spec.Name+".csv"), store.FlowChannelHeader),
	}
	c.flows = append(c.flows, ch)
	return ch.Index
}

// Fermenters returns the vessel arena.
func (c *Controller) Fermenters() []*Fermenter { return c.fermenters }

// FlowChannels returns the flow-meter arena.
func (c *Controller) FlowChannels() []*FlowChannel { return c.flows }

// Tick runs one control cycle at now.
func (c *Controller) Tick(now time.Time) {
	began := time.Now()
	for _, f := range c.fermenters {
		c.tickFermenter(f, now)
	}
	for _, ch := range c.flows {
		c.sampleFlow(ch, now)
	}
	c.metrics.ObserveTick(time.Since(began))
}

func (c *Controller) tickFermenter(f *Fermenter, now time.Time) {
	if sp, ok := f.SetpointCal.Latest(now); ok && f.Thermal.ApplySetpoint(sp) {
		c.log.Infow("setpoint from calendar", "channel", f.Name, "setpoint", sp)
	}

	if f.Dosing.NewMinute(now) {
		if values := f.DoseCal.FiredAt(now); len(values) > 0 && f.Dosing.Fire(now, values) {
			c.log.Infow("dosing scheduled", "channel", f.Name, "until", f.Dosing.Until().Format(store.TimestampLayout))
		}
	}
	c.updateDosing(f, now)

	f.Temperature = c.readTemperature(f, now)
	if f.Thermal.Step(f.Temperature) {
		st := f.Thermal.State()
		c.log.Debugw("actuators", "channel", f.Name, "temperature", f.Temperature, "cold", st.Cold, "hot", st.Hot)
	}
	c.applyRelays(f)

	rec := c.thermalRecord(f, now)
	fields := rec.Fields()
	c.report(f.Name, &f.failing, sinkCSV, store.DualWriter{Log: f.Log, Backup: c.thermalBackup}.Write(fields, fields))
	if c.tsdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
		c.report(f.Name, &f.failing, sinkTimeSeries, c.tsdb.AppendThermal(ctx, rec))
		cancel()
	}
	if c.pub != nil {
		c.report(f.Name, &f.failing, sinkMQTT, c.pub.PublishThermal(rec))
	}
	c.metrics.Vessel(f.Name, f.Temperature, f.Thermal.Setpoint, rec.Cold, rec.Hot, rec.Dosing)
}

func (c *Controller) thermalRecord(f *Fermenter, now time.Time) store.ThermalRecord {
	st := f.Thermal.State()
	return store.ThermalRecord{
		Timestamp:   now,
		Channel:     f.Name,
		Temperature: f.Temperature,
		Setpoint:    f.Thermal.Setpoint,
		Band:        f.Thermal.EffectiveBand(),
		Cold:        st.Cold,
		Hot:         st.Hot,
		Dosing:      f.Dosing.Active(),
		PumpFreq:    f.Dosing.Freq,
	}
}

// readTemperature advances a simulated plant, then reads the probe. A failed read yields
// FallbackTemperature and is logged once until the next success.
func (c *Controller) readTemperature(f *Fermenter, now time.Time) float64 {
	if p, ok := c.therm.(sensor.Plant); ok {
		st := f.Thermal.State()
		p.Advance(f.Sensor, now, f.Thermal.Setpoint, st.Cold, st.Hot)
	}
	t, err := c.therm.Read(f.Sensor)
	if err != nil {
		c.metrics.ReadFailure(f.Name, "temperature")
		if !f.tempFailing {
			c.log.Warnw("temperature read failed, using fallback", "channel", f.Name, "fallback", FallbackTemperature, "error", err)
			f.tempFailing = true
		}
		return FallbackTemperature
	}
	if f.tempFailing {
		c.log.Infow("temperature read recovered", "channel", f.Name, "temperature", t)
		f.tempFailing = false
	}
	return t
}

// updateDosing recomputes the pump state, drives the stepper on a change and records
// nutrition edges.
func (c *Controller) updateDosing(f *Fermenter, now time.Time) {
	active, changed := f.Dosing.Update(now)
	if changed {
		if active {
			c.act.DrivePump(f.Index, f.Dosing.Freq)
		} else {
			c.act.StopPump(f.Index)
		}
		c.log.Infow("nutrient pump", "channel", f.Name, "active", active)
	}
	n, ok := f.Nutrition.Observe(now, active)
	if !ok {
		return
	}
	if c.tsdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
		c.report(f.Name, &f.failing, sinkTimeSeries, c.tsdb.AppendDosing(ctx, f.Name, n))
		cancel()
	}
	if c.pub != nil {
		c.report(f.Name, &f.failing, sinkMQTT, c.pub.PublishDosing(f.Name, n))
	}
}

// applyRelays pushes the commanded thermal state to the relays when it changed. Relays
// are switched off before any is switched on.
func (c *Controller) applyRelays(f *Fermenter) {
	st := f.Thermal.State()
	if f.relaysKnown && st == f.relays {
		return
	}
	if !st.Cold {
		c.act.SetRelay(f.ColdPin, false)
	}
	if !st.Hot {
		c.act.SetRelay(f.HotPin, false)
	}
	if st.Cold {
		c.act.SetRelay(f.ColdPin, true)
	}
	if st.Hot {
		c.act.SetRelay(f.HotPin, true)
	}
	f.relays = st
	f.relaysKnown = true
}

func (c *Controller) sampleFlow(ch *FlowChannel, now time.Time) {
	if !ch.NextDue.IsZero() && now.Before(ch.NextDue) {
		return
	}
	ch.NextDue = now.Add(ch.Period)

	v, err := ch.Reader.ReadVoltage()
	if err != nil {
		c.metrics.ReadFailure(ch.Name, "analog")
		if !ch.readFailing {
			c.log.Warnw("flow read failed", "channel", ch.Name, "next", ch.NextDue.Format(store.TimestampLayout), "error", err)
			ch.readFailing = true
		}
		return
	}
	if ch.readFailing {
		c.log.Infow("flow read recovered", "channel", ch.Name)
		ch.readFailing = false
	}

	r := ch.Cal.Convert(v)
	rec := store.FlowRecord{
		Timestamp: now,
		Channel:   ch.Name,
		Flow:      r.Flow,
		CurrentMA: r.CurrentMA,
		Voltage:   r.Voltage,
		Status:    string(r.Status),
	}
	ch.Last = rec
	ch.History.Append(rec.Sample())

	c.report(ch.Name, &ch.failing, sinkCSV, store.DualWriter{Log: ch.Log, Backup: c.flowBackup}.Write(rec.ChannelFields(), rec.Fields()))
	if c.tsdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
		c.report(ch.Name, &ch.failing, sinkTimeSeries, c.tsdb.AppendFlow(ctx, rec))
		cancel()
	}
	if c.pub != nil {
		c.report(ch.Name, &ch.failing, sinkMQTT, c.pub.PublishFlow(rec))
	}
	c.metrics.FlowSample(ch.Name, r.Flow, rec.Status)
}

// report counts a sink failure and logs the first one of a streak and its recovery.
func (c *Controller) report(channel string, failing *[numSinks]bool, s sink, err error) {
	name := sinkNames[s]
	if err != nil {
		c.metrics.WriteFailure(channel, name)
		if !failing[s] {
			c.log.Errorw("write failed", "channel", channel, "sink", name, "error", err)
			failing[s] = true
		}
		return
	}
	if failing[s] {
		c.log.Infow("write recovered", "channel", channel, "sink", name)
		failing[s] = false
	}
}

// StopAll is the global safety action: every vessel goes to manual with both actuators
// off, dosing is cancelled and every pump is stopped.
func (c *Controller) StopAll(now time.Time) {
	for _, f := range c.fermenters {
		f.Thermal.StopAll()
		f.Dosing.Stop()
		c.updateDosing(f, now)
		c.act.StopPump(f.Index)
		f.relaysKnown = false
		c.applyRelays(f)
	}
	c.log.Warnw("all actuators closed, automatic control suspended", "vessels", len(c.fermenters))
}

// Shutdown closes every actuator and then releases the hardware handles.
func (c *Controller) Shutdown(now time.Time) error {
	c.StopAll(now)
	var errs []error
	for _, ch := range c.flows {
		if err := ch.Reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.act.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Vessels renders the vessel arena for status consumers.
func (c *Controller) Vessels() []status.Vessel {
	out := make([]status.Vessel, 0, len(c.fermenters))
	for _, f := range c.fermenters {
		st := f.Thermal.State()
		out = append(out, status.Vessel{
			Name:         f.Name,
			Temperature:  f.Temperature,
			TempFallback: f.tempFailing,
			Setpoint:     f.Thermal.Setpoint,
			Band:         f.Thermal.EffectiveBand(),
			Manual:       f.Thermal.Manual,
			Cold:         st.Cold,
			Hot:          st.Hot,
			Dosing:       f.Dosing.Active(),
			DosingUntil:  f.Dosing.Until(),
			ManualPump:   f.Dosing.Manual(),
			PumpFreq:     f.Dosing.Freq,
			Recording:    f.Log.State().String(),
		})
	}
	return out
}

// Flows renders the flow-meter arena for status consumers.
func (c *Controller) Flows() []status.FlowChannel {
	out := make([]status.FlowChannel, 0, len(c.flows))
	for _, ch := range c.flows {
		out = append(out, status.FlowChannel{
			Name:       ch.Name,
			Flow:       ch.Last.Flow,
			CurrentMA:  ch.Last.CurrentMA,
			Voltage:    ch.Last.Voltage,
			Status:     ch.Last.Status,
			MassRate:   flow.MassRate(ch.Last.Flow, c.opts.Density, c.opts.BrothLitres),
			LastSample: ch.Last.Timestamp,
			NextDue:    ch.NextDue,
			Period:     ch.Period,
			Samples:    ch.History.Len(),
			Recording:  ch.Log.State().String(),
		})
	}
	return out
}

// Mode returns the hardware mode shared with the capabilities.
func (c *Controller) Mode() *hardware.Mode { return c.mode }
