package internal

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/fermenter-controller/internal/controller"
	"github.com/sweeney/fermenter-controller/internal/flow"
	"github.com/sweeney/fermenter-controller/internal/gpio"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/mqtt"
	"github.com/sweeney/fermenter-controller/internal/sensor"
	"github.com/sweeney/fermenter-controller/internal/status"
	"github.com/sweeney/fermenter-controller/internal/store"
)

type pipeline struct {
	ctrl    *controller.Controller
	act     *gpio.Simulator
	therm   *sensor.FakeThermometer
	pub     *mqtt.FakePublisher
	tsdb    *store.TimeSeries
	loader  *store.Loader
	results chan store.LoadResult
	tracker *status.Tracker
}

func newPipeline(t *testing.T, start time.Time) *pipeline {
	t.Helper()
	dir := t.TempDir()

	tsdb, err := store.OpenTimeSeries(filepath.Join(dir, "fermenter.db"))
	if err != nil {
		t.Fatalf("open time series: %v", err)
	}
	t.Cleanup(func() { tsdb.Close() })

	thermalBackup := filepath.Join(dir, "Backup", "temp.csv")
	flowBackup := filepath.Join(dir, "Backup", "co2.csv")
	results := make(chan store.LoadResult, 1)
	loader := store.NewLoader(thermalBackup, flowBackup, results)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loader.Run(ctx)

	p := &pipeline{
		act:     gpio.NewSimulator(),
		therm:   sensor.NewFakeThermometer(),
		pub:     mqtt.NewFakePublisher(),
		tsdb:    tsdb,
		loader:  loader,
		results: results,
		tracker: status.NewTracker(start, status.Config{TickMs: 1000, RunID: tsdb.RunID()}),
	}
	p.ctrl = controller.New(controller.Deps{
		Actuator:    p.act,
		Thermometer: p.therm,
		Publisher:   p.pub,
		TimeSeries:  tsdb,
		Loader:      loader,
		Log:         logger.Nop(),
	}, controller.Options{
		ProcessDir:    filepath.Join(dir, "Proceso"),
		ThermalBackup: thermalBackup,
		FlowBackup:    flowBackup,
		Density:       1964,
		BrothLitres:   5,
	})
	p.ctrl.AddFermenter(controller.FermenterSpec{
		Name: "F1", ColdPin: 7, HotPin: 8, PulsePin: 13, DirPin: 26, Sensor: 0,
		Setpoint: 20, Band: 0.5, PumpFreq: 1000,
	})
	// 12 mA across 148 ohm is mid-scale on a 0-50 SCCM meter.
	p.ctrl.AddFlowChannel(controller.FlowSpec{
		Name:   "F1",
		Cal:    flow.Calibration{ShuntOhms: 148, FlowMin: 0, FlowMax: 50},
		Period: 10 * time.Second,
		Reader: sensor.NewFakeAnalog(0.012 * 148),
	})
	return p
}

// TestIntegrationTickToSinks drives temperatures through the hysteresis band and checks
// that relays, MQTT, SQLite and the status JSON all agree.
func TestIntegrationTickToSinks(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
	p := newPipeline(t, start)

	steps := []struct {
		temp      float64
		cold, hot bool
	}{
		{20.0, false, false},
		{21.0, true, false},
		{19.4, false, true},
	}
	for i, s := range steps {
		p.therm.Set(0, s.temp)
		now := start.Add(time.Duration(i) * 5 * time.Second)
		p.ctrl.Tick(now)
		p.tracker.Update(now, p.ctrl.Vessels(), p.ctrl.Flows())

		if got := p.act.Relay(7); got != s.cold {
			t.Errorf("step %d: cold relay = %v, want %v", i, got, s.cold)
		}
		if got := p.act.Relay(8); got != s.hot {
			t.Errorf("step %d: hot relay = %v, want %v", i, got, s.hot)
		}
		if p.act.Relay(7) && p.act.Relay(8) {
			t.Fatalf("step %d: both relays energised", i)
		}
	}

	if len(p.pub.Thermal) != len(steps) {
		t.Fatalf("expected %d thermal publishes, got %d", len(steps), len(p.pub.Thermal))
	}
	for i, s := range steps {
		r := p.pub.Thermal[i]
		if r.Cold != s.cold || r.Hot != s.hot {
			t.Errorf("thermal %d: cold=%v hot=%v, want cold=%v hot=%v", i, r.Cold, r.Hot, s.cold, s.hot)
		}
	}

	// Flow is sampled at 10:00:00 and 10:00:10.
	if len(p.pub.Flow) != 2 {
		t.Fatalf("expected 2 flow publishes, got %d", len(p.pub.Flow))
	}
	if math.Abs(p.pub.Flow[0].Flow-25) > 0.01 {
		t.Errorf("flow = %.3f, want 25", p.pub.Flow[0].Flow)
	}

	ctx := context.Background()
	thermal, err := p.tsdb.ThermalSince(ctx, "F1", start)
	if err != nil {
		t.Fatalf("ThermalSince: %v", err)
	}
	if len(thermal) != len(steps) {
		t.Errorf("expected %d thermal rows in sqlite, got %d", len(steps), len(thermal))
	}
	flows, err := p.tsdb.FlowSince(ctx, "F1", start)
	if err != nil {
		t.Fatalf("FlowSince: %v", err)
	}
	if len(flows) != 2 {
		t.Errorf("expected 2 flow rows in sqlite, got %d", len(flows))
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(p.tracker.Snapshot()), &parsed); err != nil {
		t.Fatalf("status JSON: %v", err)
	}
	if len(parsed.Status.Vessels) != 1 {
		t.Fatalf("expected 1 vessel in status, got %d", len(parsed.Status.Vessels))
	}
	v := parsed.Status.Vessels[0]
	if !v.Hot || v.Cold {
		t.Errorf("status vessel: cold=%v hot=%v, want hot only", v.Cold, v.Hot)
	}
	if v.Temperature != 19.4 {
		t.Errorf("status temperature = %v, want 19.4", v.Temperature)
	}
}

// TestIntegrationHistoryFromBackup requests history through the controller and loads it
// back from the backup CSVs on the loader goroutine.
func TestIntegrationHistoryFromBackup(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
	p := newPipeline(t, start)
	p.therm.Set(0, 20)

	for i := 0; i < 4; i++ {
		p.ctrl.Tick(start.Add(time.Duration(i) * 5 * time.Second))
	}

	now := start.Add(time.Minute)
	if _, err := p.ctrl.Execute(controller.Command{Op: controller.OpHistory, Channel: "F1", Window: time.Hour}, now); err != nil {
		t.Fatalf("history request: %v", err)
	}

	var res store.LoadResult
	select {
	case res = <-p.results:
	case <-time.After(5 * time.Second):
		t.Fatal("history load timed out")
	}

	h, ok := p.ctrl.HistoryLoaded(res, now)
	if !ok {
		t.Fatal("current result reported as stale")
	}
	if h.Err != "" {
		t.Fatalf("history error: %s", h.Err)
	}
	if h.ThermalRows != 4 {
		t.Errorf("thermal rows = %d, want 4", h.ThermalRows)
	}
	if h.FlowRows != 2 {
		t.Errorf("flow rows = %d, want 2", h.FlowRows)
	}
	if math.Abs(h.MeanTemp-20) > 1e-6 {
		t.Errorf("mean temperature = %.3f, want 20", h.MeanTemp)
	}
}

// TestIntegrationShutdownReleasesEverything checks the safe state after a shutdown.
func TestIntegrationShutdownReleasesEverything(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
	p := newPipeline(t, start)
	p.therm.Set(0, 25)
	p.ctrl.Tick(start)
	if !p.act.Relay(7) {
		t.Fatal("expected cold relay on at 25 °C")
	}

	if err := p.ctrl.Shutdown(start.Add(time.Second)); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if relays := p.act.EnergisedRelays(); len(relays) != 0 {
		t.Errorf("relays still energised after shutdown: %v", relays)
	}
	if !p.act.Closed() {
		t.Error("actuator not closed")
	}
	if p.act.Pump(0).Running {
		t.Error("pump still running after shutdown")
	}
}
