// Package config loads daemon configuration from config.yml and FERMENTER_* environment
// variables. Missing files are not an error: every key has a default matching the
// three-vessel rig the daemon was built for.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FERMENTER_SIMULATOR=true.
const EnvPrefix = "FERMENTER"

// MinBand is the smallest accepted hysteresis half-width in °C.
const MinBand = 0.05

// Config is the full daemon configuration.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	Simulator  bool             `mapstructure:"simulator"`
	Tick       time.Duration    `mapstructure:"tick"`
	Control    ControlConfig    `mapstructure:"control"`
	Flow       FlowConfig       `mapstructure:"flow"`
	Paths      PathsConfig      `mapstructure:"paths"`
	GPIO       GPIOConfig       `mapstructure:"gpio"`
	I2C        I2CConfig        `mapstructure:"i2c"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Fermenters []FermenterConfig `mapstructure:"fermenters"`
}

// ControlConfig holds the initial thermal and dosing parameters of every vessel.
type ControlConfig struct {
	Setpoint float64 `mapstructure:"setpoint"`
	Band     float64 `mapstructure:"band"`
	PumpFreq float64 `mapstructure:"pump_freq"`
}

// FlowConfig describes the CO2 flow meters shared by all vessels.
type FlowConfig struct {
	Min          float64       `mapstructure:"min"`
	Max          float64       `mapstructure:"max"`
	Density      float64       `mapstructure:"density"`
	BrothLitres  float64       `mapstructure:"broth_litres"`
	Retention    time.Duration `mapstructure:"retention"`
	SamplePeriod time.Duration `mapstructure:"sample_period"`
}

// PathsConfig holds every file the daemon writes.
type PathsConfig struct {
	ProcessDir    string `mapstructure:"process_dir"`
	BackupThermal string `mapstructure:"backup_thermal"`
	BackupFlow    string `mapstructure:"backup_flow"`
	CalendarDB    string `mapstructure:"calendar_db"`
	TimeSeriesDB  string `mapstructure:"timeseries_db"`
	W1Devices     string `mapstructure:"w1_devices"`
}

// GPIOConfig selects the GPIO character device.
type GPIOConfig struct {
	Chip string `mapstructure:"chip"`
}

// I2CConfig holds defaults for the analog front end.
type I2CConfig struct {
	Address int     `mapstructure:"address"`
	Gain    float64 `mapstructure:"gain"`
}

// MQTTConfig configures telemetry publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	BufferSize  int    `mapstructure:"buffer_size"`

	// Heartbeat is the period of HEARTBEAT status events; 0 disables them.
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// HTTPConfig configures the read-only status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// FermenterConfig describes one vessel and its flow meter.
type FermenterConfig struct {
	Name         string        `mapstructure:"name"`
	ColdPin      int           `mapstructure:"cold_pin"`
	HotPin       int           `mapstructure:"hot_pin"`
	PulsePin     int           `mapstructure:"pulse_pin"`
	DirPin       int           `mapstructure:"dir_pin"`
	Sensor       int           `mapstructure:"sensor"`
	ShuntOhms    float64       `mapstructure:"shunt_ohms"`
	ADSAddress   int           `mapstructure:"ads_address"`
	ADSChannel   int           `mapstructure:"ads_channel"`
	ADSGain      float64       `mapstructure:"ads_gain"`
	SamplePeriod time.Duration `mapstructure:"sample_period"`
}

// DefaultFermenters returns the wiring of the reference rig.
func DefaultFermenters() []FermenterConfig {
	return []FermenterConfig{
		{Name: "F1", ColdPin: 7, HotPin: 8, PulsePin: 13, DirPin: 26, Sensor: 0, ShuntOhms: 148.0, ADSChannel: 0},
		{Name: "F2", ColdPin: 24, HotPin: 23, PulsePin: 21, DirPin: 20, Sensor: 1, ShuntOhms: 148.5, ADSChannel: 1},
		{Name: "F3", ColdPin: 18, HotPin: 15, PulsePin: 12, DirPin: 16, Sensor: 2, ShuntOhms: 147.5, ADSChannel: 2},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("simulator", false)
	v.SetDefault("tick", time.Second)

	v.SetDefault("control.setpoint", 20.0)
	v.SetDefault("control.band", 0.5)
	v.SetDefault("control.pump_freq", 1000.0)

	v.SetDefault("flow.min", 0.0)
	v.SetDefault("flow.max", 50.0)
	v.SetDefault("flow.density", 1964.0)
	v.SetDefault("flow.broth_litres", 5.0)
	v.SetDefault("flow.retention", 504*time.Hour)
	v.SetDefault("flow.sample_period", time.Duration(0))

	v.SetDefault("paths.process_dir", "./Proceso")
	v.SetDefault("paths.backup_thermal", "./Backup/backup_global_temperatura.csv")
	v.SetDefault("paths.backup_flow", "./Backup/backup_global_co2.csv")
	v.SetDefault("paths.calendar_db", "./calendars.db")
	v.SetDefault("paths.timeseries_db", "./timeseries.sqlite")
	v.SetDefault("paths.w1_devices", "/sys/bus/w1/devices")

	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("i2c.address", 0x48)
	v.SetDefault("i2c.gain", 1.0)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "fermenter-controller")
	v.SetDefault("mqtt.topic_prefix", "fermentation")
	v.SetDefault("mqtt.buffer_size", 500)
	v.SetDefault("mqtt.heartbeat", 15*time.Minute)

	v.SetDefault("http.addr", ":8080")
}

// Load reads config.yml from dir (if present) and applies environment overrides.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyFermenterDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFermenterDefaults() {
	if len(c.Fermenters) == 0 {
		c.Fermenters = DefaultFermenters()
	}
	for i := range c.Fermenters {
		f := &c.Fermenters[i]
		if f.Name == "" {
			f.Name = fmt.Sprintf("F%d", i+1)
		}
		if f.ShuntOhms == 0 {
			f.ShuntOhms = 148.0
		}
		if f.ADSAddress == 0 {
			f.ADSAddress = c.I2C.Address
		}
		if f.ADSGain == 0 {
			f.ADSGain = c.I2C.Gain
		}
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.Tick)
	}
	if c.Control.Band < MinBand {
		return fmt.Errorf("control.band must be >= %.2f, got %v", MinBand, c.Control.Band)
	}
	if math.IsNaN(c.Control.Setpoint) || math.IsInf(c.Control.Setpoint, 0) {
		return fmt.Errorf("control.setpoint must be finite")
	}
	if c.Control.PumpFreq < 0 {
		return fmt.Errorf("control.pump_freq must be >= 0, got %v", c.Control.PumpFreq)
	}
	if c.Flow.Retention <= 0 {
		return fmt.Errorf("flow.retention must be positive, got %v", c.Flow.Retention)
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt.heartbeat must be >= 0, got %v", c.MQTT.Heartbeat)
	}
	if len(c.Fermenters) == 0 {
		return errors.New("no fermenters configured")
	}

	seen := make(map[string]bool, len(c.Fermenters))
	for _, f := range c.Fermenters {
		key := strings.ToUpper(f.Name)
		if seen[key] {
			return fmt.Errorf("duplicate fermenter name %q", f.Name)
		}
		seen[key] = true
		if f.ShuntOhms <= 0 {
			return fmt.Errorf("fermenter %s: shunt_ohms must be positive", f.Name)
		}
		if f.ADSChannel < 0 || f.ADSChannel > 3 {
			return fmt.Errorf("fermenter %s: ads_channel must be 0-3, got %d", f.Name, f.ADSChannel)
		}
		if f.SamplePeriod < 0 {
			return fmt.Errorf("fermenter %s: negative sample_period", f.Name)
		}
	}
	return nil
}

// SamplePeriod resolves the flow sampling period for a vessel: its own override, then the
// global override, then 1s when its reader is simulated or 10s on hardware. simulated
// covers both --simulator and a reader that fell back at startup.
func (c *Config) SamplePeriod(f FermenterConfig, simulated bool) time.Duration {
	if f.SamplePeriod > 0 {
		return f.SamplePeriod
	}
	if c.Flow.SamplePeriod > 0 {
		return c.Flow.SamplePeriod
	}
	if simulated || c.Simulator {
		return time.Second
	}
	return 10 * time.Second
}
