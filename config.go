package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// -------------------- Defaults --------------------

const (
	defaultBaudRate           = 9600
	defaultTracksDir          = "tracks"
	defaultMIDIChannel        = 0
	defaultVelocity           = 127
	defaultThresholdCM        = 100
	defaultCooldownSeconds    = 5
	defaultTrackDelaySeconds  = 300 // 5 minutes
	defaultMaxQueuedTracks    = 2
	defaultTickIntervalMillis = 100
	defaultNoteGateMillis     = 100
)

// -------------------- Config --------------------

// Config holds every process-wide setting. It is populated once at startup
// (defaults, then optional TOML file, then flag overrides) and passed by
// value to each component; nothing mutates it after that.
type Config struct {
	// SerialPort is the sensor device path. Empty means auto-detect an
	// Arduino-compatible port.
	SerialPort string `toml:"serial_port"`
	BaudRate   int    `toml:"baud_rate"`

	// TracksDir is scanned once at startup to build the track library.
	TracksDir string `toml:"tracks_dir"`

	MIDIChannel uint8 `toml:"midi_channel"`
	Velocity    uint8 `toml:"velocity"`

	ProximityThresholdCM float64 `toml:"proximity_threshold_cm"`
	CooldownSeconds      float64 `toml:"detection_cooldown_seconds"`
	TrackDelaySeconds    float64 `toml:"track_delay_seconds"`
	MaxQueuedTracks      int     `toml:"max_queued_tracks"`

	TickIntervalMillis int `toml:"tick_interval_ms"`
	NoteGateMillis     int `toml:"note_gate_ms"`
}

// DefaultConfig returns the repository defaults, matching the original
// installation setup.
func DefaultConfig() Config {
	return Config{
		BaudRate:             defaultBaudRate,
		TracksDir:            defaultTracksDir,
		MIDIChannel:          defaultMIDIChannel,
		Velocity:             defaultVelocity,
		ProximityThresholdCM: defaultThresholdCM,
		CooldownSeconds:      defaultCooldownSeconds,
		TrackDelaySeconds:    defaultTrackDelaySeconds,
		MaxQueuedTracks:      defaultMaxQueuedTracks,
		TickIntervalMillis:   defaultTickIntervalMillis,
		NoteGateMillis:       defaultNoteGateMillis,
	}
}

// LoadConfig reads a TOML file on top of the defaults. A missing file at the
// default path is fine; an explicitly named file must exist.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would break queue or MIDI invariants.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.TracksDir == "" {
		return errors.New("tracks_dir must be set")
	}
	if c.MIDIChannel > 15 {
		return fmt.Errorf("midi_channel must be 0-15, got %d", c.MIDIChannel)
	}
	if c.Velocity > 127 {
		return fmt.Errorf("velocity must be 0-127, got %d", c.Velocity)
	}
	if c.ProximityThresholdCM <= 0 {
		return fmt.Errorf("proximity_threshold_cm must be positive, got %g", c.ProximityThresholdCM)
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("detection_cooldown_seconds must not be negative, got %g", c.CooldownSeconds)
	}
	if c.TrackDelaySeconds < 0 {
		return fmt.Errorf("track_delay_seconds must not be negative, got %g", c.TrackDelaySeconds)
	}
	if c.MaxQueuedTracks < 1 {
		return fmt.Errorf("max_queued_tracks must be at least 1, got %d", c.MaxQueuedTracks)
	}
	if c.TickIntervalMillis <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive, got %d", c.TickIntervalMillis)
	}
	if c.NoteGateMillis < 0 {
		return fmt.Errorf("note_gate_ms must not be negative, got %d", c.NoteGateMillis)
	}
	return nil
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

func (c Config) TrackDelay() time.Duration {
	return time.Duration(c.TrackDelaySeconds * float64(time.Second))
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMillis) * time.Millisecond
}

func (c Config) NoteGate() time.Duration {
	return time.Duration(c.NoteGateMillis) * time.Millisecond
}
