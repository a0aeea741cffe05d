package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/fermenter-controller/internal/calendar"
	"github.com/sweeney/fermenter-controller/internal/controller"
	"github.com/sweeney/fermenter-controller/internal/logger"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want controller.Command
	}{
		{"status", controller.Command{Op: controller.OpStatus}},
		{"  STOP-ALL ", controller.Command{Op: controller.OpStopAll}},
		{"manual F1 on", controller.Command{Op: controller.OpManual, Channel: "F1", On: true}},
		{"manual F2 off", controller.Command{Op: controller.OpManual, Channel: "F2"}},
		{"cold F1", controller.Command{Op: controller.OpForceCold, Channel: "F1"}},
		{"hot F3", controller.Command{Op: controller.OpForceHot, Channel: "F3"}},
		{"close F1", controller.Command{Op: controller.OpClose, Channel: "F1"}},
		{"pump F2", controller.Command{Op: controller.OpPump, Channel: "F2"}},
		{"setpoint F1 18.5", controller.Command{Op: controller.OpSetpoint, Channel: "F1", Value: 18.5}},
		{"setpoint F1 18,5", controller.Command{Op: controller.OpSetpoint, Channel: "F1", Value: 18.5}},
		{"band F1 0.3", controller.Command{Op: controller.OpBand, Channel: "F1", Value: 0.3}},
		{"pump-freq F1 800", controller.Command{Op: controller.OpPumpFreq, Channel: "F1", Value: 800}},
		{"cal show F1 sp", controller.Command{Op: controller.OpCalShow, Channel: "F1", Kind: calendar.Setpoint}},
		{"cal show F1 dosing 2026-03-10", controller.Command{Op: controller.OpCalShow, Channel: "F1", Kind: calendar.Dosing, Date: "2026-03-10"}},
		{"cal add F1 setpoint 2026-03-10 08:00 20", controller.Command{
			Op: controller.OpCalAdd, Channel: "F1", Kind: calendar.Setpoint, Date: "2026-03-10", Clock: "08:00", Value: 20}},
		{"cal set F2 nutrition 10/03/2026 1 9:30 45", controller.Command{
			Op: controller.OpCalUpdate, Channel: "F2", Kind: calendar.Dosing, Date: "10/03/2026", Index: 1, Clock: "9:30", Value: 45}},
		{"cal rm F1 sp 2026-03-10 0", controller.Command{Op: controller.OpCalRemove, Channel: "F1", Kind: calendar.Setpoint, Date: "2026-03-10"}},
		{"cal clear F1 sp 2026-03-10", controller.Command{Op: controller.OpCalClear, Channel: "F1", Kind: calendar.Setpoint, Date: "2026-03-10"}},
		{"cal import F3 dose /media/usb/plan.xlsx", controller.Command{Op: controller.OpCalImport, Channel: "F3", Kind: calendar.Dosing, Path: "/media/usb/plan.xlsx"}},
		{"record F1 start", controller.Command{Op: controller.OpRecord, Channel: "F1", Target: controller.TargetThermal, Action: controller.ActionStart}},
		{"record F1 co2 pause", controller.Command{Op: controller.OpRecord, Channel: "F1", Target: controller.TargetFlow, Action: controller.ActionPause}},
		{"export F1 /tmp/out", controller.Command{Op: controller.OpExport, Channel: "F1", Target: controller.TargetThermal, Path: "/tmp/out"}},
		{"export F2 flow /tmp/out", controller.Command{Op: controller.OpExport, Channel: "F2", Target: controller.TargetFlow, Path: "/tmp/out"}},
		{"export-all /media/usb", controller.Command{Op: controller.OpExportAll, Path: "/media/usb"}},
		{"clear-backup flow", controller.Command{Op: controller.OpClearBackup, Target: controller.TargetFlow}},
		{"history F1", controller.Command{Op: controller.OpHistory, Channel: "F1"}},
		{"history F1 6", controller.Command{Op: controller.OpHistory, Channel: "F1", Window: 6 * time.Hour}},
		{"history F1 90m", controller.Command{Op: controller.OpHistory, Channel: "F1", Window: 90 * time.Minute}},
		{"", controller.Command{}},
		{"# comment", controller.Command{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"frobnicate",
		"manual F1",
		"manual F1 maybe",
		"setpoint F1 warm",
		"band F1",
		"cal add F1 setpoint 2026-03-10 08:00",
		"cal add F1 weekly 2026-03-10 08:00 20",
		"cal rm F1 sp 2026-03-10 -1",
		"cal frob F1 sp",
		"record F1 rewind",
		"record F1 humidity start",
		"export F1",
		"clear-backup",
		"clear-backup all",
		"history F1 0",
		"history F1 soon",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			if _, err := Parse(line); err == nil {
				t.Errorf("Parse(%q) expected error", line)
			}
		})
	}
}

func TestParseHelp(t *testing.T) {
	if _, err := Parse("help"); !errors.Is(err, ErrHelp) {
		t.Errorf("Parse(help) error = %v, want ErrHelp", err)
	}
}

func TestRunDeliversCommands(t *testing.T) {
	in := strings.NewReader("status\nbogus\n\nhelp\nsetpoint F1 19\n")
	var out bytes.Buffer
	c := New(in, &out, logger.Nop())

	commands := make(chan controller.Command, 4)
	c.Run(context.Background(), commands)
	close(commands)

	var got []controller.Op
	for cmd := range commands {
		got = append(got, cmd.Op)
	}
	if len(got) != 2 || got[0] != controller.OpStatus || got[1] != controller.OpSetpoint {
		t.Errorf("delivered ops = %v, want [status setpoint]", got)
	}
	if !strings.Contains(out.String(), `error: console: usage: unknown command "bogus"`) {
		t.Errorf("output missing parse error:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "cal import <ch>") {
		t.Errorf("output missing help:\n%s", out.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	in := strings.NewReader("status\nstatus\n")
	c := New(in, &bytes.Buffer{}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx, make(chan controller.Command))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReply(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out, logger.Nop())
	c.Reply("F1 setpoint 18.00", nil)
	c.Reply("partial", errors.New("disk full"))
	want := "F1 setpoint 18.00\npartial\nerror: disk full\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
