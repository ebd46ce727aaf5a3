package main

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// PREFERRED_PATTERNS: output ports matching any of these are picked first
// (the DAW doing the actual playback).
var PREFERRED_PATTERNS = []string{"Reaper", "DAW", "Virtual", "MIDI"}

// EXCLUDED_PATTERNS: virtual/system ports that are never auto-selected.
var EXCLUDED_PATTERNS = []string{"Midi Through", "Through Port", "Dummy"}

// MIDIOut is the playback trigger sink: one rtmidi output port, selected at
// startup, to which every fired trigger is sent as a note-on/note-off pair.
type MIDIOut struct {
	drv  *rtmididrv.Driver
	port drivers.Out
	send func(midi.Message) error

	name     string
	channel  uint8
	velocity uint8
	gate     time.Duration
}

// OpenMIDIOut initialises the rtmidi driver and connects to the best
// available output port: first match of the preferred name patterns, else
// the first port that is not excluded. No output port at all is an error;
// the process cannot do anything useful without a sink.
func OpenMIDIOut(channel, velocity uint8, gate time.Duration) (*MIDIOut, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}

	var names []string
	var ports []drivers.Out
	for _, out := range outs {
		name := out.String()
		excluded := false
		for _, pat := range EXCLUDED_PATTERNS {
			if containsCI(name, pat) {
				excluded = true
				break
			}
		}
		if excluded {
			logger.Debug("midi: output excluded", "port", name)
			continue
		}
		names = append(names, name)
		ports = append(ports, out)
	}
	if len(ports) == 0 {
		drv.Close()
		return nil, fmt.Errorf("no midi output ports available")
	}
	logger.Info("midi: outputs found", "count", len(names), "ports", strings.Join(names, ", "))

	port := ports[0]
	for _, pat := range PREFERRED_PATTERNS {
		found := false
		for i, name := range names {
			if containsCI(name, pat) {
				port = ports[i]
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	if err := port.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open midi output %q: %w", port.String(), err)
	}
	send, err := midi.SendTo(port)
	if err != nil {
		_ = port.Close()
		drv.Close()
		return nil, fmt.Errorf("sender for %q: %w", port.String(), err)
	}

	m := &MIDIOut{
		drv:      drv,
		port:     port,
		send:     send,
		name:     port.String(),
		channel:  channel,
		velocity: velocity,
		gate:     gate,
	}
	logger.Info("midi: connected", "port", m.name, "channel", channel, "velocity", velocity)
	return m, nil
}

// SendNote delivers one playback trigger: note-on, a short gate, note-off.
// The gate sleep is a blocking boundary call; at a handful of fires per hour
// it cannot starve the event loop.
func (m *MIDIOut) SendNote(note uint8) error {
	if err := m.send(midi.NoteOn(m.channel, note, m.velocity)); err != nil {
		return fmt.Errorf("note on %d: %w", note, err)
	}
	time.Sleep(m.gate)
	if err := m.send(midi.NoteOff(m.channel, note)); err != nil {
		return fmt.Errorf("note off %d: %w", note, err)
	}
	logger.Debug("midi: trigger sent", "note", note, "port", m.name)
	return nil
}

// Close shuts down the output port and the rtmidi driver.
func (m *MIDIOut) Close() {
	logger.Info("midi: closing", "port", m.name)
	_ = m.port.Close()
	m.drv.Close()
}

// -------------------- utility --------------------

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
