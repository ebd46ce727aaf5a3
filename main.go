package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger) // stdlib log.* now routes through slog
}

// -------------------- Tunables --------------------

// sampleBuffer bounds the channel between the serial reader and the event
// loop. The sensor reports a few samples per second; a short backlog is all
// the loop ever needs to absorb a blocking MIDI send.
const sampleBuffer = 32

const defaultConfigPath = "lou-sentinel.toml"

// -------------------- Main --------------------

func main() {
	configPath := flag.String("config", defaultConfigPath, "TOML config file")
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	serialDev := flag.String("serial", "", "serial port device (overrides config; empty = auto-detect)")
	tracksDir := flag.String("tracks", "", "track WAV directory (overrides config)")
	flag.Parse()

	initLogger(*debug)

	cfg, err := LoadConfig(*configPath, *configPath != defaultConfigPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if *serialDev != "" {
		cfg.SerialPort = *serialDev
	}
	if *tracksDir != "" {
		cfg.TracksDir = *tracksDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "err", err)
		os.Exit(1)
	}

	logger.Info("lou-sentinel starting",
		"serial", cfg.SerialPort,
		"baud", cfg.BaudRate,
		"tracks", cfg.TracksDir,
		"threshold_cm", cfg.ProximityThresholdCM,
		"cooldown", cfg.Cooldown(),
		"track_delay", cfg.TrackDelay(),
		"max_queued", cfg.MaxQueuedTracks,
	)

	lib, err := LoadLibrary(cfg.TracksDir)
	if err != nil {
		logger.Error("track library build failed", "err", err)
		os.Exit(1)
	}
	logger.Info("track library built", "tracks", lib.Len())

	out, err := OpenMIDIOut(cfg.MIDIChannel, cfg.Velocity, cfg.NoteGate())
	if err != nil {
		logger.Error("midi init failed", "err", err)
		os.Exit(1)
	}
	defer out.Close()

	sensor, err := OpenSensor(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		logger.Error("sensor init failed", "err", err)
		os.Exit(1)
	}
	defer sensor.Close()

	if err := run(cfg, lib, sensor, out); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run owns the event loop: it drains the sample channel through the detector
// and lets the poll tick drive the queue's fire and clear deadlines. The loop
// is the single goroutine touching detector state; queue state is behind the
// queue's own mutex.
func run(cfg Config, lib *Library, sensor *SensorPort, out Sender) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := systemClock{}
	detector := NewDetector(cfg.ProximityThresholdCM, cfg.Cooldown(), clock)
	queue := NewTriggerQueue(lib, cfg.TrackDelay(), cfg.MaxQueuedTracks, clock)
	dispatcher := NewDispatcher(queue, out, clock)

	samples := make(chan DistanceSample, sampleBuffer)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- sensor.Stream(ctx, clock, samples)
	}()

	// On shutdown, closing the port unblocks the reader's pending Read.
	go func() {
		<-ctx.Done()
		sensor.Close()
	}()

	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	logger.Info("monitoring", "threshold_cm", cfg.ProximityThresholdCM)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "queued_discarded", queue.Len())
			return nil

		case err := <-streamErr:
			if ctx.Err() != nil {
				logger.Info("shutting down", "queued_discarded", queue.Len())
				return nil
			}
			return err

		case s := <-samples:
			if !detector.Observe(s) {
				continue
			}
			track := lib.Pick()
			if _, err := queue.Enqueue(track.ID); err != nil {
				// Only possible for an id the library does not know,
				// which Pick cannot produce.
				logger.Error("enqueue rejected", "id", track.ID, "err", err)
			}

		case <-ticker.C:
			dispatcher.Tick()
		}
	}
}
