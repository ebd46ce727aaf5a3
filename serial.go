package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SensorPort wraps the serial channel the distance sensor reports on.
type SensorPort struct {
	port serial.Port
	name string
}

// OpenSensor opens the named serial device, or auto-detects an
// Arduino-compatible port when name is empty.
func OpenSensor(name string, baud int) (*SensorPort, error) {
	if name == "" {
		detected, err := detectArduinoPort()
		if err != nil {
			return nil, err
		}
		name = detected
	}

	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return &SensorPort{port: p, name: name}, nil
}

// detectArduinoPort scans the enumerated serial ports for Arduino-family
// hardware: known USB vendor/product IDs first, then the usual usbmodem /
// ttyUSB / ttyACM device-name patterns.
func detectArduinoPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB && isArduinoUSB(p.VID, p.PID, p.Product) {
			logger.Info("serial: arduino detected by USB id", "device", p.Name, "vid", p.VID, "pid", p.PID)
			return p.Name, nil
		}
	}
	for _, p := range ports {
		dev := strings.ToLower(p.Name)
		for _, pat := range []string{"usbmodem", "usbserial", "ttyusb", "ttyacm"} {
			if strings.Contains(dev, pat) {
				logger.Info("serial: arduino-like device detected by name", "device", p.Name)
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no arduino found on any serial port")
}

// isArduinoUSB matches genuine Arduinos (VID 2341) and the CH340 / CP2102 /
// FTDI bridges the clones ship with.
func isArduinoUSB(vid, pid, product string) bool {
	switch {
	case strings.EqualFold(vid, "2341"):
		return true
	case strings.EqualFold(vid, "1A86") && strings.EqualFold(pid, "7523"):
		return true
	case strings.EqualFold(vid, "10C4") && strings.EqualFold(pid, "EA60"):
		return true
	}
	for _, kw := range []string{"arduino", "ch340", "cp2102", "ftdi"} {
		if containsCI(product, kw) {
			return true
		}
	}
	return false
}

// Stream reads distance lines until the channel breaks, pushing each parsed
// sample into out. Malformed lines are skipped without touching any state.
// It always returns a non-nil error: a broken or closed sensor channel is a
// fatal condition for the process.
//
// The bounded out channel decouples the blocking serial read from the event
// loop's timing bookkeeping; at sub-second sample rates it never fills.
func (s *SensorPort) Stream(ctx context.Context, clock Clock, out chan<- DistanceSample) error {
	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		cm, ok := parseDistanceLine(scan.Text())
		if !ok {
			logger.Debug("serial: unparseable line skipped", "line", scan.Text())
			continue
		}
		select {
		case out <- DistanceSample{At: clock.Now(), CM: cm}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("sensor channel: %w", err)
	}
	return fmt.Errorf("sensor channel closed")
}

// Close closes the underlying serial port, unblocking any pending read.
func (s *SensorPort) Close() {
	logger.Info("serial: closing port", "device", s.name)
	_ = s.port.Close()
}

// parseDistanceLine extracts the centimeter value from one sensor line. The
// firmware reports "Distance: 42.5 cm"; bare numeric lines are accepted too.
func parseDistanceLine(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "Distance:"); ok {
		line = rest
	}
	line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "cm"))
	if line == "" {
		return 0, false
	}
	cm, err := strconv.ParseFloat(line, 64)
	if err != nil || cm < 0 {
		return 0, false
	}
	return cm, true
}
