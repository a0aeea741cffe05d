package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Tick)
	assert.Equal(t, 20.0, cfg.Control.Setpoint)
	assert.Equal(t, 0.5, cfg.Control.Band)
	assert.Equal(t, 1000.0, cfg.Control.PumpFreq)
	assert.Equal(t, 50.0, cfg.Flow.Max)
	assert.Equal(t, 504*time.Hour, cfg.Flow.Retention)
	assert.Equal(t, 15*time.Minute, cfg.MQTT.Heartbeat)
	assert.Empty(t, cfg.MQTT.Broker)
	require.Len(t, cfg.Fermenters, 3)
	assert.Equal(t, "F2", cfg.Fermenters[1].Name)
	assert.Equal(t, 148.5, cfg.Fermenters[1].ShuntOhms)
	assert.Equal(t, 0x48, cfg.Fermenters[2].ADSAddress)
	assert.Equal(t, 1.0, cfg.Fermenters[2].ADSGain)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yml := `
simulator: true
tick: 2s
control:
  setpoint: 18.5
flow:
  sample_period: 5s
fermenters:
  - name: A
    cold_pin: 5
    hot_pin: 6
    shunt_ohms: 150
    sample_period: 3s
  - name: B
    cold_pin: 19
    hot_pin: 20
    ads_channel: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Simulator)
	assert.Equal(t, 2*time.Second, cfg.Tick)
	assert.Equal(t, 18.5, cfg.Control.Setpoint)
	require.Len(t, cfg.Fermenters, 2)
	assert.Equal(t, 150.0, cfg.Fermenters[0].ShuntOhms)
	assert.Equal(t, 148.0, cfg.Fermenters[1].ShuntOhms, "missing shunt gets default")
	assert.Equal(t, 3*time.Second, cfg.SamplePeriod(cfg.Fermenters[0], true))
	assert.Equal(t, 5*time.Second, cfg.SamplePeriod(cfg.Fermenters[1], true))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FERMENTER_SIMULATOR", "true")
	t.Setenv("FERMENTER_CONTROL_BAND", "0.8")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.Simulator)
	assert.Equal(t, 0.8, cfg.Control.Band)
}

func TestLoadRejectsNarrowBand(t *testing.T) {
	t.Setenv("FERMENTER_CONTROL_BAND", "0.01")
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestSamplePeriodDefaults(t *testing.T) {
	cfg := Config{}
	f := FermenterConfig{Name: "F1"}
	assert.Equal(t, 10*time.Second, cfg.SamplePeriod(f, false))
	assert.Equal(t, time.Second, cfg.SamplePeriod(f, true), "reader fell back to simulation")
	cfg.Simulator = true
	assert.Equal(t, time.Second, cfg.SamplePeriod(f, false))

	cfg.Flow.SamplePeriod = 4 * time.Second
	assert.Equal(t, 4*time.Second, cfg.SamplePeriod(f, true), "override wins over the simulated default")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{
			Tick:       time.Second,
			Control:    ControlConfig{Setpoint: 20, Band: 0.5, PumpFreq: 1000},
			Flow:       FlowConfig{Retention: time.Hour},
			Fermenters: DefaultFermenters(),
		}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.Tick = 0 }},
		{"negative pump freq", func(c *Config) { c.Control.PumpFreq = -1 }},
		{"no fermenters", func(c *Config) { c.Fermenters = nil }},
		{"duplicate names", func(c *Config) { c.Fermenters[1].Name = "f1" }},
		{"zero shunt", func(c *Config) { c.Fermenters[0].ShuntOhms = 0 }},
		{"bad ads channel", func(c *Config) { c.Fermenters[0].ADSChannel = 4 }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
