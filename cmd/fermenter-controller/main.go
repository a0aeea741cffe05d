// Command fermenter-controller regulates the temperature and nutrient dosing of a set of
// fermentation vessels, samples their CO2 flow meters and records everything to CSV,
// SQLite and MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sweeney/fermenter-controller/internal/config"
	"github.com/sweeney/fermenter-controller/internal/console"
	"github.com/sweeney/fermenter-controller/internal/controller"
	"github.com/sweeney/fermenter-controller/internal/logger"
	"github.com/sweeney/fermenter-controller/internal/metrics"
	"github.com/sweeney/fermenter-controller/internal/mqtt"
	"github.com/sweeney/fermenter-controller/internal/status"
	"github.com/sweeney/fermenter-controller/internal/store"
	"github.com/sweeney/fermenter-controller/internal/web"
)

func main() {
	configDir := flag.String("config", "", "Directory containing config.yml")
	simulator := flag.Bool("simulator", false, "Simulate every device (overrides config)")
	printState := flag.Bool("print-state", false, "Print one reading per vessel and exit")

	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *simulator {
		cfg.Simulator = true
	}

	log := logger.Get(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, *printState, log); err != nil {
		log.Errorw("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, printState bool, log *logger.Logger) error {
	start := time.Now()
	hw := openHardware(cfg, start, log)
	defer hw.closeBus()

	if printState {
		defer hw.actuator.Close()
		return printReadings(os.Stdout, cfg, hw)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := openStores(cfg, log)
	defer stores.close()

	results := make(chan store.LoadResult, 4)
	loader := store.NewLoader(cfg.Paths.BackupThermal, cfg.Paths.BackupFlow, results)
	go loader.Run(ctx)

	rec := metrics.New()

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Topics:     mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
			RunID:      stores.runID,
			BufferSize: cfg.MQTT.BufferSize,
		}, log)
		defer p.Close()
		publisher, mqttStatus = p, p
	} else {
		log.Infow("mqtt disabled, no broker configured")
	}

	deps := controller.Deps{
		Actuator:    hw.actuator,
		Thermometer: hw.thermometer,
		Mode:        hw.mode,
		Publisher:   publisher,
		Loader:      loader,
		Metrics:     rec,
		Log:         log.Named("controller"),
	}
	if stores.timeSeries != nil {
		deps.TimeSeries = stores.timeSeries
	}
	if stores.calendars != nil {
		deps.Calendars = stores.calendars
	}
	ctrl := controller.New(deps, controller.Options{
		ProcessDir:    cfg.Paths.ProcessDir,
		ThermalBackup: cfg.Paths.BackupThermal,
		FlowBackup:    cfg.Paths.BackupFlow,
		Retention:     cfg.Flow.Retention,
		Density:       cfg.Flow.Density,
		BrothLitres:   cfg.Flow.BrothLitres,
	})
	addVessels(ctrl, cfg, hw, stores, log)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(start, status.Config{
		TickMs:    cfg.Tick.Milliseconds(),
		Broker:    cfg.MQTT.Broker,
		HTTPAddr:  cfg.HTTP.Addr,
		RunID:     stores.runID,
		Simulator: cfg.Simulator,
	})
	tracker.SetMode(hw.mode.Summary())
	tracker.Update(start, ctrl.Vessels(), ctrl.Flows())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warnw("failed to publish startup event", "error", err)
		}
	}

	if cfg.HTTP.Addr != "" {
		var history web.HistoryStore
		if stores.timeSeries != nil {
			history = stores.timeSeries
		}
		srv := web.New(cfg.HTTP.Addr, tracker, history, rec.Handler(), log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	commands := make(chan controller.Command)
	con := console.New(os.Stdin, os.Stdout, log.Named("console"))
	go con.Run(ctx, commands)

	watchdog, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warnw("systemd watchdog", "error", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnw("systemd notify", "error", err)
	}

	log.Infow("started",
		"mode", hw.mode.Summary(),
		"vessels", len(ctrl.Fermenters()),
		"flow_meters", len(ctrl.FlowChannels()),
		"tick", cfg.Tick,
		"run_id", stores.runID,
	)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		ctrl:       ctrl,
		console:    con,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		heartbeat:  cfg.MQTT.Heartbeat,
		watchdog:   watchdog / 2,
		notify:     func(state string) { daemon.SdNotify(false, state) },
		log:        log,
		now:        time.Now,
	}
	return l.run(ticker.C, sigCh, commands, results)
}

// loop owns the controller. Every mutation happens on the goroutine running run.
type loop struct {
	ctrl       *controller.Controller
	console    *console.Console
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
	watchdog   time.Duration
	notify     func(state string)
	log        *logger.Logger
	now        func() time.Time

	lastHeartbeat time.Time
	lastWatchdog  time.Time
}

func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal, commands <-chan controller.Command, results <-chan store.LoadResult) error {
	startTime := l.now()
	l.lastHeartbeat = startTime

	for {
		select {
		case s := <-sig:
			l.log.Infow("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			l.sdNotify(daemon.SdNotifyStopping)

			t := l.now()
			err := l.ctrl.Shutdown(t)
			if err != nil {
				l.log.Errorw("release hardware", "error", err)
			}
			l.refresh(t)
			l.publishSystem("SHUTDOWN", signalName, t, true)
			return err

		case <-tick:
			t := l.now()
			l.ctrl.Tick(t)
			l.refresh(t)

			if l.heartbeat > 0 && t.Sub(l.lastHeartbeat) >= l.heartbeat {
				l.lastHeartbeat = t
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					l.tracker.SetNetwork(net)
				}
				l.publishSystem("HEARTBEAT", "", t, false)
			}
			if l.watchdog > 0 && t.Sub(l.lastWatchdog) >= l.watchdog {
				l.lastWatchdog = t
				l.sdNotify(daemon.SdNotifyWatchdog)
			}

		case cmd := <-commands:
			t := l.now()
			msg, err := l.ctrl.Execute(cmd, t)
			if err != nil {
				l.log.Warnw("command rejected", "op", cmd.Op, "channel", cmd.Channel, "error", err)
			} else {
				l.log.Infow("command", "op", cmd.Op, "channel", cmd.Channel)
			}
			if l.console != nil {
				l.console.Reply(msg, err)
			}
			l.refresh(t)
			if cmd.Op == controller.OpStopAll {
				l.publishSystem("STOP_ALL", "operator", t, true)
			}

		case res := <-results:
			h, ok := l.ctrl.HistoryLoaded(res, l.now())
			if !ok {
				l.log.Debugw("dropping stale history", "channel", res.Query.Channel, "id", res.Query.ID)
				continue
			}
			l.tracker.SetHistory(h)
			if l.console != nil {
				line := fmt.Sprintf("%s history: %d thermal rows (mean %.2f °C), %d flow rows (mean %.2f SCCM)",
					h.Channel, h.ThermalRows, h.MeanTemp, h.FlowRows, h.MeanFlow)
				var err error
				if h.Err != "" {
					err = errors.New(h.Err)
				}
				l.console.Reply(line, err)
			}
		}
	}
}

// refresh copies controller state into the status tracker.
func (l *loop) refresh(t time.Time) {
	l.tracker.Update(t, l.ctrl.Vessels(), l.ctrl.Flows())
	l.tracker.SetMode(l.ctrl.Mode().Summary())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) publishSystem(event, reason string, t time.Time, retained bool) {
	if l.publisher == nil {
		return
	}
	snap := l.tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.publisher.PublishSystem(se); err != nil {
		l.log.Warnw("system event publish failed", "event", event, "error", err)
	} else {
		l.log.Infow("published system event", "event", event)
	}
}

func (l *loop) sdNotify(state string) {
	if l.notify != nil {
		l.notify(state)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
