// Package console reads operator commands from a line-oriented stream (normally stdin)
// and turns them into controller.Command values. Execution happens on the run loop; the
// console only parses and prints replies.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/fermenter-controller/internal/calendar"
	"github.com/sweeney/fermenter-controller/internal/controller"
	"github.com/sweeney/fermenter-controller/internal/logger"
)

// ErrUsage is returned for lines that do not match any command form.
var ErrUsage = errors.New("console: usage")

// ErrHelp is returned by Parse for the help command.
var ErrHelp = errors.New("console: help requested")

// Help lists the accepted command forms.
const Help = `commands:
  status
  stop-all
  manual <ch> on|off
  cold|hot|close <ch>
  setpoint <ch> <celsius>
  band <ch> <celsius>
  pump-freq <ch> <hz>
  pump <ch>
  cal show <ch> setpoint|dosing [date]
  cal add <ch> setpoint|dosing <date> <hh:mm> <value>
  cal set <ch> setpoint|dosing <date> <index> <hh:mm> <value>
  cal rm <ch> setpoint|dosing <date> <index>
  cal clear <ch> setpoint|dosing <date>
  cal import <ch> setpoint|dosing <file.csv|file.xlsx>
  record <ch> [thermal|flow] start|pause|restart
  export <ch> [thermal|flow] <path>
  export-all <dir>
  clear-backup thermal|flow
  history <ch> [hours|duration]`

// Parse converts one input line. Blank lines and lines starting with # return a zero
// Command and no error.
func Parse(line string) (controller.Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 || strings.HasPrefix(f[0], "#") {
		return controller.Command{}, nil
	}
	verb, args := strings.ToLower(f[0]), f[1:]

	switch verb {
	case "help", "?":
		return controller.Command{}, ErrHelp
	case "status":
		return controller.Command{Op: controller.OpStatus}, nil
	case "stop-all", "stop":
		return controller.Command{Op: controller.OpStopAll}, nil
	case "export-all":
		if len(args) != 1 {
			return usage("export-all <dir>")
		}
		return controller.Command{Op: controller.OpExportAll, Path: args[0]}, nil
	case "clear-backup":
		if len(args) != 1 {
			return usage("clear-backup thermal|flow")
		}
		t, err := parseTarget(args[0])
		if err != nil {
			return controller.Command{}, err
		}
		return controller.Command{Op: controller.OpClearBackup, Target: t}, nil
	case "manual":
		if len(args) != 2 {
			return usage("manual <ch> on|off")
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return controller.Command{}, err
		}
		return controller.Command{Op: controller.OpManual, Channel: args[0], On: on}, nil
	case "cold", "hot", "close", "pump":
		if len(args) != 1 {
			return usage(verb + " <ch>")
		}
		ops := map[string]controller.Op{
			"cold": controller.OpForceCold, "hot": controller.OpForceHot,
			"close": controller.OpClose, "pump": controller.OpPump,
		}
		return controller.Command{Op: ops[verb], Channel: args[0]}, nil
	case "setpoint", "band", "pump-freq":
		if len(args) != 2 {
			return usage(verb + " <ch> <value>")
		}
		v, err := parseNumber(args[1])
		if err != nil {
			return controller.Command{}, err
		}
		return controller.Command{Op: controller.Op(verb), Channel: args[0], Value: v}, nil
	case "cal":
		return parseCalendar(args)
	case "record":
		return parseRecord(args)
	case "export":
		switch len(args) {
		case 2:
			return controller.Command{Op: controller.OpExport, Channel: args[0], Target: controller.TargetThermal, Path: args[1]}, nil
		case 3:
			t, err := parseTarget(args[1])
			if err != nil {
				return controller.Command{}, err
			}
			return controller.Command{Op: controller.OpExport, Channel: args[0], Target: t, Path: args[2]}, nil
		}
		return usage("export <ch> [thermal|flow] <path>")
	case "history":
		cmd := controller.Command{Op: controller.OpHistory}
		switch len(args) {
		case 1:
		case 2:
			w, err := parseWindow(args[1])
			if err != nil {
				return controller.Command{}, err
			}
			cmd.Window = w
		default:
			return usage("history <ch> [hours|duration]")
		}
		cmd.Channel = args[0]
		return cmd, nil
	}
	return controller.Command{}, fmt.Errorf("%w: unknown command %q (try help)", ErrUsage, verb)
}

func parseCalendar(args []string) (controller.Command, error) {
	if len(args) < 3 {
		return usage("cal show|add|set|rm|clear|import <ch> setpoint|dosing ...")
	}
	kind, err := calendar.ParseKind(args[2])
	if err != nil {
		return controller.Command{}, err
	}
	cmd := controller.Command{Channel: args[1], Kind: kind}
	rest := args[3:]

	switch strings.ToLower(args[0]) {
	case "show":
		cmd.Op = controller.OpCalShow
		if len(rest) > 1 {
			return usage("cal show <ch> <kind> [date]")
		}
		if len(rest) == 1 {
			cmd.Date = rest[0]
		}
	case "add":
		if len(rest) != 3 {
			return usage("cal add <ch> <kind> <date> <hh:mm> <value>")
		}
		cmd.Op, cmd.Date, cmd.Clock = controller.OpCalAdd, rest[0], rest[1]
		if cmd.Value, err = parseNumber(rest[2]); err != nil {
			return controller.Command{}, err
		}
	case "set":
		if len(rest) != 4 {
			return usage("cal set <ch> <kind> <date> <index> <hh:mm> <value>")
		}
		cmd.Op, cmd.Date, cmd.Clock = controller.OpCalUpdate, rest[0], rest[2]
		if cmd.Index, err = parseIndex(rest[1]); err != nil {
			return controller.Command{}, err
		}
		if cmd.Value, err = parseNumber(rest[3]); err != nil {
			return controller.Command{}, err
		}
	case "rm":
		if len(rest) != 2 {
			return usage("cal rm <ch> <kind> <date> <index>")
		}
		cmd.Op, cmd.Date = controller.OpCalRemove, rest[0]
		if cmd.Index, err = parseIndex(rest[1]); err != nil {
			return controller.Command{}, err
		}
	case "clear":
		if len(rest) != 1 {
			return usage("cal clear <ch> <kind> <date>")
		}
		cmd.Op, cmd.Date = controller.OpCalClear, rest[0]
	case "import":
		if len(rest) != 1 {
			return usage("cal import <ch> <kind> <file>")
		}
		cmd.Op, cmd.Path = controller.OpCalImport, rest[0]
	default:
		return controller.Command{}, fmt.Errorf("%w: unknown calendar action %q", ErrUsage, args[0])
	}
	return cmd, nil
}

func parseRecord(args []string) (controller.Command, error) {
	cmd := controller.Command{Op: controller.OpRecord, Target: controller.TargetThermal}
	switch len(args) {
	case 2:
		cmd.Channel, cmd.Action = args[0], strings.ToLower(args[1])
	case 3:
		t, err := parseTarget(args[1])
		if err != nil {
			return controller.Command{}, err
		}
		cmd.Channel, cmd.Target, cmd.Action = args[0], t, strings.ToLower(args[2])
	default:
		return usage("record <ch> [thermal|flow] start|pause|restart")
	}
	switch cmd.Action {
	case controller.ActionStart, controller.ActionPause, controller.ActionRestart:
		return cmd, nil
	}
	return controller.Command{}, fmt.Errorf("%w: unknown recorder action %q", ErrUsage, cmd.Action)
}

func usage(form string) (controller.Command, error) {
	return controller.Command{}, fmt.Errorf("%w: %s", ErrUsage, form)
}

func parseTarget(s string) (controller.Target, error) {
	switch strings.ToLower(s) {
	case "thermal", "temp", "temperature":
		return controller.TargetThermal, nil
	case "flow", "co2":
		return controller.TargetFlow, nil
	}
	return "", fmt.Errorf("%w: expected thermal or flow, got %q", ErrUsage, s)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", ErrUsage, s)
}

// parseNumber accepts a decimal comma as well as a point.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUsage, s)
	}
	return v, nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q is not an event index", ErrUsage, s)
	}
	return i, nil
}

// parseWindow accepts a Go duration ("90m") or a whole number of hours.
func parseWindow(s string) (time.Duration, error) {
	if h, err := strconv.Atoi(s); err == nil && h > 0 {
		return time.Duration(h) * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q is not a history window", ErrUsage, s)
	}
	return d, nil
}

// Console reads commands from in and writes replies to out.
type Console struct {
	in  io.Reader
	out io.Writer
	log *logger.Logger
	mu  sync.Mutex
}

// New creates a console over the given streams.
func New(in io.Reader, out io.Writer, log *logger.Logger) *Console {
	return &Console{in: in, out: out, log: log}
}

// Run scans lines until EOF or ctx is cancelled and delivers parsed commands. Parse
// errors are answered directly and never reach the run loop.
func (c *Console) Run(ctx context.Context, commands chan<- controller.Command) {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		cmd, err := Parse(sc.Text())
		switch {
		case errors.Is(err, ErrHelp):
			c.Print(Help)
			continue
		case err != nil:
			c.Reply("", err)
			continue
		case cmd.Op == "":
			continue
		}
		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		c.log.Warnw("console input closed", "error", err)
	}
}

// Reply prints the outcome of a command.
func (c *Console) Reply(msg string, err error) {
	if msg != "" {
		c.Print(msg)
	}
	if err != nil {
		c.Print("error: " + err.Error())
	}
}

// Print writes one block of text followed by a newline.
func (c *Console) Print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}
