package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cwbudde/wav"
)

// TrackAsset is one playable track discovered at startup. ID doubles as the
// MIDI note number sent when the track fires.
type TrackAsset struct {
	ID       uint8
	Duration time.Duration
	Path     string
}

// Library is the immutable identifier→track table built by a single startup
// scan of the tracks directory. It is never mutated afterwards, so concurrent
// reads need no locking.
type Library struct {
	tracks map[uint8]TrackAsset
	ids    []uint8 // sorted, for deterministic iteration and random picks
}

func newLibrary(assets []TrackAsset) *Library {
	l := &Library{tracks: make(map[uint8]TrackAsset, len(assets))}
	for _, a := range assets {
		l.tracks[a.ID] = a
		l.ids = append(l.ids, a.ID)
	}
	sort.Slice(l.ids, func(i, j int) bool { return l.ids[i] < l.ids[j] })
	return l
}

// LoadLibrary scans dir once and decodes every WAV file it finds. Files are
// visited in lexical order so the duplicate-identifier policy (first file
// wins) does not depend on readdir order. Unparseable names, duplicate
// identifiers, identifiers outside the MIDI note range and undecodable files
// are skipped with a warning; the scan only fails if the directory is
// unreadable or yields no tracks at all.
func LoadLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan tracks dir: %w", err)
	}

	var assets []TrackAsset
	seen := map[uint8]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		name := e.Name()
		id, ok := parseTrackID(name)
		if !ok {
			logger.Warn("tracks: no digits in filename, skipping", "file", name)
			continue
		}
		if id > 127 {
			logger.Warn("tracks: identifier outside MIDI note range, skipping", "file", name, "id", id)
			continue
		}
		note := uint8(id)
		if prev, dup := seen[note]; dup {
			logger.Warn("tracks: duplicate identifier, skipping", "file", name, "id", note, "kept", prev)
			continue
		}

		path := filepath.Join(dir, name)
		dur, err := wavDuration(path)
		if err != nil {
			logger.Warn("tracks: undecodable file, skipping", "file", name, "err", err)
			continue
		}

		seen[note] = name
		assets = append(assets, TrackAsset{ID: note, Duration: dur, Path: path})
		logger.Info("tracks: registered", "id", note, "duration", dur, "file", name)
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("no playable tracks in %s", dir)
	}
	return newLibrary(assets), nil
}

// parseTrackID extracts the first contiguous run of digits in a filename:
// "60.wav" → 60, "track_72.mp3" → 72, "ambient_64_loop.flac" → 64.
func parseTrackID(name string) (int, bool) {
	start := -1
	for i, r := range name {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return atoiRun(name[start:i])
		}
	}
	if start >= 0 {
		return atoiRun(name[start:])
	}
	return 0, false
}

func atoiRun(digits string) (int, bool) {
	n := 0
	for _, r := range digits {
		n = n*10 + int(r-'0')
		if n > 1<<20 { // absurd run, avoid overflow
			return 0, false
		}
	}
	return n, true
}

// wavDuration decodes a WAV file and derives its playback duration from the
// frame count and sample rate.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	frames := len(buf.Data) / buf.Format.NumChannels
	return time.Duration(frames) * time.Second / time.Duration(buf.Format.SampleRate), nil
}

// Lookup returns the track for an identifier, if registered.
func (l *Library) Lookup(id uint8) (TrackAsset, bool) {
	t, ok := l.tracks[id]
	return t, ok
}

// Pick returns a random track, mirroring the original installation behaviour
// of queuing an arbitrary track per detection.
func (l *Library) Pick() TrackAsset {
	return l.tracks[l.ids[rand.IntN(len(l.ids))]]
}

// IDs returns the registered identifiers in ascending order.
func (l *Library) IDs() []uint8 {
	out := make([]uint8, len(l.ids))
	copy(out, l.ids)
	return out
}

func (l *Library) Len() int { return len(l.ids) }
