// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// serialSource reads a head-tracker bridge over a serial port. The bridge
// emits one reading per line as comma-separated values:
//
//	w,x,y,z,ax,ay,az,gx,gy,gz
//
// orientation quaternion first, then raw acceleration and rotation rate.
type serialSource struct {
	portName string
	baudRate uint
	logger   *zap.Logger

	samples  chan Sample
	stop     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewSerialSource creates a motion source reading from a serial head-tracker
// bridge, e.g. /dev/ttyUSB0 at 115200 baud.
func NewSerialSource(portName string, baudRate uint, logger *zap.Logger) Source {
	return &serialSource{
		portName: portName,
		baudRate: baudRate,
		logger:   logger,
		samples:  make(chan Sample, 16),
		stop:     make(chan struct{}),
	}
}

func (s *serialSource) Name() string { return "serial:" + s.portName }

func (s *serialSource) Available() (bool, string) {
	if _, err := os.Stat(s.portName); err != nil {
		return false, fmt.Sprintf("serial port %s not present: %v", s.portName, err)
	}
	return true, ""
}

// RequestAccess opens the serial port. A failed open is reported as a reason,
// not an error: the daemon keeps running without posture data.
func (s *serialSource) RequestAccess(ctx context.Context) (bool, string) {
	opts := serial.OpenOptions{
		PortName:        s.portName,
		BaudRate:        s.baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return false, fmt.Sprintf("open %s at %d baud: %v", s.portName, s.baudRate, err)
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	return true, ""
}

func (s *serialSource) Start(ctx context.Context) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return fmt.Errorf("serial source %s: RequestAccess not granted", s.portName)
	}

	go func() {
		defer close(s.samples)
		reader := bufio.NewReader(port)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				s.logger.Warn("serial read error, source stopping",
					zap.String("port", s.portName),
					zap.Error(err),
				)
				return
			}

			sample, ok := parseTrackerLine(strings.TrimSpace(line), time.Now())
			if !ok {
				// Partial or garbled line from a noisy bridge; skip it.
				continue
			}

			select {
			case s.samples <- sample:
			default:
			}
		}
	}()
	return nil
}

func (s *serialSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.port != nil {
			s.port.Close()
		}
		s.mu.Unlock()
	})
}

func (s *serialSource) Samples() <-chan Sample { return s.samples }

// parseTrackerLine parses one bridge line into a Sample. Gravity is derived
// from the quaternion's rotation of the world down vector so downstream
// validity checks work even though the bridge does not send gravity
// separately.
func parseTrackerLine(line string, ts time.Time) (Sample, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return Sample{}, false
	}

	fields := strings.Split(line, ",")
	if len(fields) != 10 {
		return Sample{}, false
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, false
		}
		vals[i] = v
	}

	q := Quaternion{W: vals[0], X: vals[1], Y: vals[2], Z: vals[3]}
	accel := Vector3{X: vals[4], Y: vals[5], Z: vals[6]}
	rotation := Vector3{X: vals[7], Y: vals[8], Z: vals[9]}

	return NewSample(ts, q, accel, q.rotateDown(), rotation), true
}

// rotateDown rotates the unit down vector (0,0,-1) by the quaternion,
// recovering the gravity direction in sensor frame.
func (q Quaternion) rotateDown() Vector3 {
	return Vector3{
		X: -2 * (q.X*q.Z + q.W*q.Y),
		Y: -2 * (q.Y*q.Z - q.W*q.X),
		Z: -(1 - 2*(q.X*q.X+q.Y*q.Y)),
	}
}
