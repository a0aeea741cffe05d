package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sweeney/fermenter-controller/internal/calendar"
	"github.com/sweeney/fermenter-controller/internal/status"
	"github.com/sweeney/fermenter-controller/internal/store"
)

// ErrUnknownChannel is returned when a command names no configured vessel or meter.
var ErrUnknownChannel = errors.New("controller: unknown channel")

// ErrInvalidCommand is returned for commands missing a required argument.
var ErrInvalidCommand = errors.New("controller: invalid command")

// Op identifies an operator command.
type Op string

const (
	OpStatus      Op = "status"
	OpManual      Op = "manual"
	OpForceCold   Op = "cold"
	OpForceHot    Op = "hot"
	OpClose       Op = "close"
	OpStopAll     Op = "stop-all"
	OpSetpoint    Op = "setpoint"
	OpBand        Op = "band"
	OpPumpFreq    Op = "pump-freq"
	OpPump        Op = "pump"
	OpCalShow     Op = "cal-show"
	OpCalAdd      Op = "cal-add"
	OpCalUpdate   Op = "cal-set"
	OpCalRemove   Op = "cal-rm"
	OpCalClear    Op = "cal-clear"
	OpCalImport   Op = "cal-import"
	OpRecord      Op = "record"
	OpExport      Op = "export"
	OpExportAll   Op = "export-all"
	OpClearBackup Op = "clear-backup"
	OpHistory     Op = "history"
)

// Target selects the thermal or the flow log of a vessel.
type Target string

const (
	TargetThermal Target = "thermal"
	TargetFlow    Target = "flow"
)

// Recorder actions.
const (
	ActionStart   = "start"
	ActionPause   = "pause"
	ActionRestart = "restart"
)

// Command is one operator request. Only the fields relevant to Op are read.
type Command struct {
	Op      Op
	Channel string
	Target  Target
	Action  string
	Kind    calendar.Kind
	Date    string
	Clock   string
	Index   int
	Value   float64
	On      bool
	Path    string
	Window  time.Duration
}

// Execute applies a command at now and returns a one-line (or multi-line for listings)
// report. A rejected command leaves every value unchanged.
func (c *Controller) Execute(cmd Command, now time.Time) (string, error) {
	switch cmd.Op {
	case OpStatus:
		return c.describe(), nil
	case OpStopAll:
		c.StopAll(now)
		return "all vessels stopped", nil
	case OpExportAll:
		return c.exportAll(cmd.Path)
	case OpClearBackup:
		return c.clearBackup(cmd.Target)
	}

	f, err := c.fermenter(cmd.Channel)
	if err != nil {
		return "", err
	}

	switch cmd.Op {
	case OpManual:
		f.Thermal.SetManual(cmd.On)
		return fmt.Sprintf("%s manual %s", f.Name, onOff(cmd.On)), nil
	case OpForceCold:
		if err := f.Thermal.ForceCold(); err != nil {
			return "", err
		}
		c.applyRelays(f)
		return f.Name + " cold on, hot off", nil
	case OpForceHot:
		if err := f.Thermal.ForceHot(); err != nil {
			return "", err
		}
		c.applyRelays(f)
		return f.Name + " hot on, cold off", nil
	case OpClose:
		f.Thermal.CloseAll()
		c.applyRelays(f)
		return f.Name + " actuators closed", nil
	case OpSetpoint:
		if err := f.Thermal.SetSetpoint(cmd.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s setpoint %.2f", f.Name, f.Thermal.Setpoint), nil
	case OpBand:
		if err := f.Thermal.SetBand(cmd.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s band %.2f", f.Name, f.Thermal.Band), nil
	case OpPumpFreq:
		if err := f.Dosing.SetFreq(cmd.Value); err != nil {
			return "", err
		}
		if f.Dosing.Active() {
			c.act.DrivePump(f.Index, f.Dosing.Freq)
		}
		return fmt.Sprintf("%s pump frequency %.0f Hz", f.Name, f.Dosing.Freq), nil
	case OpPump:
		on := f.Dosing.ToggleManual()
		c.updateDosing(f, now)
		return fmt.Sprintf("%s manual pump %s", f.Name, onOff(on)), nil
	case OpCalShow, OpCalAdd, OpCalUpdate, OpCalRemove, OpCalClear, OpCalImport:
		return c.editCalendar(f, cmd)
	case OpRecord:
		return c.record(f, cmd.Target, cmd.Action)
	case OpExport:
		log, err := c.logFor(f, cmd.Target)
		if err != nil {
			return "", err
		}
		return exportLog(log, cmd.Path)
	case OpHistory:
		return c.requestHistory(f, cmd.Window, now)
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, cmd.Op)
}

func (c *Controller) fermenter(name string) (*Fermenter, error) {
	for _, f := range c.fermenters {
		if strings.EqualFold(f.Name, name) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

func (c *Controller) flowChannel(name string) (*FlowChannel, error) {
	for _, ch := range c.flows {
		if strings.EqualFold(ch.Name, name) {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: no flow meter %q", ErrUnknownChannel, name)
}

func (c *Controller) logFor(f *Fermenter, target Target) (*store.ChannelLog, error) {
	switch target {
	case TargetThermal, "":
		return f.Log, nil
	case TargetFlow:
		ch, err := c.flowChannel(f.Name)
		if err != nil {
			return nil, err
		}
		return ch.Log, nil
	}
	return nil, fmt.Errorf("%w: unknown log %q", ErrInvalidCommand, target)
}

func (c *Controller) record(f *Fermenter, target Target, action string) (string, error) {
	log, err := c.logFor(f, target)
	if err != nil {
		return "", err
	}
	switch action {
	case ActionStart:
		log.Start()
	case ActionPause:
		if err := log.Pause(); err != nil {
			return "", err
		}
	case ActionRestart:
		if err := log.Restart(); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: unknown recorder action %q", ErrInvalidCommand, action)
	}
	return fmt.Sprintf("%s %s log %s", f.Name, targetName(target), log.State()), nil
}

func exportLog(log *store.ChannelLog, dst string) (string, error) {
	if dst == "" {
		return "", fmt.Errorf("%w: export needs a destination", ErrInvalidCommand)
	}
	n, err := log.Export(dst)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exported %s (%s)", filepath.Base(log.Path()), humanize.Bytes(uint64(n))), nil
}

// exportAll copies every paused or idle log into dir. Logs still recording, or never
// written, are reported and skipped.
func (c *Controller) exportAll(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: export needs a destination directory", ErrInvalidCommand)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	var (
		lines []string
		errs  []error
	)
	logs := make([]*store.ChannelLog, 0, len(c.fermenters)+len(c.flows))
	for _, f := range c.fermenters {
		logs = append(logs, f.Log)
	}
	for _, ch := range c.flows {
		logs = append(logs, ch.Log)
	}
	for _, log := range logs {
		line, err := exportLog(log, dir)
		switch {
		case errors.Is(err, store.ErrNoLog):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(log.Path()), err))
		default:
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 && len(errs) == 0 {
		return "nothing to export", nil
	}
	return strings.Join(lines, "\n"), errors.Join(errs...)
}

func (c *Controller) clearBackup(target Target) (string, error) {
	var sink *store.CSVSink
	switch target {
	case TargetThermal:
		sink = c.thermalBackup
	case TargetFlow:
		sink = c.flowBackup
	default:
		return "", fmt.Errorf("%w: clear-backup needs thermal or flow", ErrInvalidCommand)
	}
	size := sink.Size()
	if err := store.ClearBackup(sink.Path); err != nil {
		return "", err
	}
	c.log.Warnw("backup cleared by operator", "path", sink.Path, "size", humanize.Bytes(uint64(size)))
	return fmt.Sprintf("cleared %s (%s)", sink.Path, humanize.Bytes(uint64(size))), nil
}

func (c *Controller) editCalendar(f *Fermenter, cmd Command) (string, error) {
	cal := f.SetpointCal
	if cmd.Kind == calendar.Dosing {
		cal = f.DoseCal
	} else if cmd.Kind != calendar.Setpoint {
		return "", fmt.Errorf("%w: calendar kind required", ErrInvalidCommand)
	}

	var msg string
	switch cmd.Op {
	case OpCalShow:
		return describeDay(f.Name, cmd.Kind, cmd.Date, cal)
	case OpCalAdd:
		if err := cal.Add(cmd.Date, cmd.Clock, cmd.Value); err != nil {
			return "", err
		}
		msg = fmt.Sprintf("%s %s: added %s %s = %g", f.Name, cmd.Kind, cmd.Date, cmd.Clock, cmd.Value)
	case OpCalUpdate:
		if err := cal.Update(cmd.Date, cmd.Index, cmd.Clock, cmd.Value); err != nil {
			return "", err
		}
		msg = fmt.Sprintf("%s %s: event %d on %s set to %s = %g", f.Name, cmd.Kind, cmd.Index, cmd.Date, cmd.Clock, cmd.Value)
	case OpCalRemove:
		if err := cal.Remove(cmd.Date, cmd.Index); err != nil {
			return "", err
		}
		msg = fmt.Sprintf("%s %s: removed event %d on %s", f.Name, cmd.Kind, cmd.Index, cmd.Date)
	case OpCalClear:
		if err := cal.ClearDay(cmd.Date); err != nil {
			return "", err
		}
		msg = fmt.Sprintf("%s %s: cleared %s", f.Name, cmd.Kind, cmd.Date)
	case OpCalImport:
		imported, skipped, err := calendar.LoadFile(cmd.Path)
		if err != nil {
			return "", err
		}
		cal = imported
		if cmd.Kind == calendar.Dosing {
			f.DoseCal = cal
		} else {
			f.SetpointCal = cal
		}
		msg = fmt.Sprintf("%s %s: imported %d events from %s, skipped %d rows", f.Name, cmd.Kind, cal.Len(), filepath.Base(cmd.Path), skipped)
	}

	if c.cals != nil {
		if err := c.cals.Save(f.Name, cmd.Kind, cal); err != nil {
			return msg, fmt.Errorf("calendar applied but not saved: %w", err)
		}
	}
	c.log.Infow("calendar edited", "channel", f.Name, "kind", cmd.Kind, "events", cal.Len())
	return msg, nil
}

func describeDay(name string, kind calendar.Kind, date string, cal *calendar.Calendar) (string, error) {
	if date == "" {
		dates := cal.Dates()
		if len(dates) == 0 {
			return fmt.Sprintf("%s %s: empty", name, kind), nil
		}
		return fmt.Sprintf("%s %s: %d events on %s", name, kind, cal.Len(), strings.Join(dates, ", ")), nil
	}
	d, err := calendar.ParseDate(date)
	if err != nil {
		return "", err
	}
	evs := cal.Day(d)
	lines := []string{fmt.Sprintf("%s %s %s: %d events", name, kind, d, len(evs))}
	for i, ev := range evs {
		lines = append(lines, fmt.Sprintf("  [%d] %s %g", i, ev.Time, ev.Value))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Controller) requestHistory(f *Fermenter, window time.Duration, now time.Time) (string, error) {
	if c.loader == nil {
		return "", fmt.Errorf("%w: history loading disabled", ErrInvalidCommand)
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	id, err := c.loader.Request(f.Name, now.Add(-window))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s history request %d queued (%s)", f.Name, id, window), nil
}

// HistoryLoaded summarises a loader result. ok is false for results superseded by a
// newer request, which callers drop.
func (c *Controller) HistoryLoaded(res store.LoadResult, now time.Time) (h status.History, ok bool) {
	if c.loader != nil && !c.loader.Current(res) {
		return status.History{}, false
	}
	h = status.History{
		Channel:     res.Query.Channel,
		Since:       res.Query.Since,
		LoadedAt:    now,
		ThermalRows: len(res.Thermal),
		FlowRows:    len(res.Flow),
	}
	if res.Err != nil {
		h.Err = res.Err.Error()
	}
	if n := len(res.Thermal); n > 0 {
		sum := 0.0
		for _, r := range res.Thermal {
			sum += r.Temperature
		}
		h.MeanTemp = sum / float64(n)
	}
	if n := len(res.Flow); n > 0 {
		sum := 0.0
		for _, r := range res.Flow {
			sum += r.Flow
		}
		h.MeanFlow = sum / float64(n)
	}
	return h, true
}

func (c *Controller) describe() string {
	lines := []string{"mode: " + c.mode.Summary()}
	for _, v := range c.Vessels() {
		lines = append(lines, fmt.Sprintf("%s  T=%.1f SP=%.2f±%.2f manual=%s cold=%s hot=%s pump=%s log=%s",
			v.Name, v.Temperature, v.Setpoint, v.Band, onOff(v.Manual), onOff(v.Cold), onOff(v.Hot), onOff(v.Dosing), v.Recording))
	}
	for _, fl := range c.Flows() {
		lines = append(lines, fmt.Sprintf("%s  flow=%.2f SCCM (%s) every %s log=%s", fl.Name, fl.Flow, fl.Status, fl.Period, fl.Recording))
	}
	return strings.Join(lines, "\n")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func targetName(t Target) string {
	if t == "" {
		return string(TargetThermal)
	}
	return string(t)
}
