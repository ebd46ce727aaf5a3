package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, 100.0, cfg.ProximityThresholdCM)
	assert.Equal(t, 5*time.Second, cfg.Cooldown())
	assert.Equal(t, 5*time.Minute, cfg.TrackDelay())
	assert.Equal(t, 2, cfg.MaxQueuedTracks)
	assert.Equal(t, uint8(0), cfg.MIDIChannel)
	assert.Equal(t, uint8(127), cfg.Velocity)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.NoteGate())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingOptional(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), true)
	require.Error(t, err)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial_port = "/dev/ttyACM1"
proximity_threshold_cm = 60
track_delay_seconds = 30
max_queued_tracks = 4
`), 0o644))

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.SerialPort)
	assert.Equal(t, 60.0, cfg.ProximityThresholdCM)
	assert.Equal(t, 30*time.Second, cfg.TrackDelay())
	assert.Equal(t, 4, cfg.MaxQueuedTracks)
	// Untouched keys keep their defaults.
	assert.Equal(t, 9600, cfg.BaudRate)
	assert.Equal(t, 5*time.Second, cfg.Cooldown())
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_queued_tracks = ["), 0o644))
	_, err := LoadConfig(path, true)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	mutate := func(f func(*Config)) Config {
		cfg := DefaultConfig()
		f(&cfg)
		return cfg
	}
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero baud", mutate(func(c *Config) { c.BaudRate = 0 })},
		{"empty tracks dir", mutate(func(c *Config) { c.TracksDir = "" })},
		{"channel too high", mutate(func(c *Config) { c.MIDIChannel = 16 })},
		{"velocity too high", mutate(func(c *Config) { c.Velocity = 128 })},
		{"zero threshold", mutate(func(c *Config) { c.ProximityThresholdCM = 0 })},
		{"negative cooldown", mutate(func(c *Config) { c.CooldownSeconds = -1 })},
		{"negative delay", mutate(func(c *Config) { c.TrackDelaySeconds = -1 })},
		{"zero capacity", mutate(func(c *Config) { c.MaxQueuedTracks = 0 })},
		{"zero tick", mutate(func(c *Config) { c.TickIntervalMillis = 0 })},
		{"negative gate", mutate(func(c *Config) { c.NoteGateMillis = -1 })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}
