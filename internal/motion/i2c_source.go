// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// MPU6050 registers used by the I2C source.
const (
	mpuAddr       = 0x68
	regPwrMgmt1   = 0x6B
	regAccelXoutH = 0x3B
	regWhoAmI     = 0x75

	// Sensitivity at the default full-scale ranges (±2g, ±250°/s).
	accelLSBPerG   = 16384.0
	gyroLSBPerDegS = 131.0

	// Complementary filter weight for the gyro term.
	compAlpha = 0.98
)

// i2cSource reads an MPU6050 over I2C and derives orientation from a
// complementary filter (accelerometer tilt corrected by integrated gyro).
// Yaw is not observable without a magnetometer and stays at 0.
type i2cSource struct {
	busName  string
	interval time.Duration
	logger   *zap.Logger

	samples  chan Sample
	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	bus i2c.BusCloser
	dev *i2c.Dev

	pitch, roll float64
	lastRead    time.Time
}

// NewI2CSource creates a motion source reading an MPU6050 on the named I2C
// bus ("" selects the first available bus) at the given poll interval.
func NewI2CSource(busName string, interval time.Duration, logger *zap.Logger) Source {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &i2cSource{
		busName:  busName,
		interval: interval,
		logger:   logger,
		samples:  make(chan Sample, 16),
		stop:     make(chan struct{}),
	}
}

func (s *i2cSource) Name() string { return "i2c:mpu6050" }

func (s *i2cSource) Available() (bool, string) {
	if _, err := host.Init(); err != nil {
		return false, fmt.Sprintf("periph host init: %v", err)
	}
	return true, ""
}

// RequestAccess opens the bus and wakes the device. Failure is a degraded
// mode, not an error.
func (s *i2cSource) RequestAccess(ctx context.Context) (bool, string) {
	if _, err := host.Init(); err != nil {
		return false, fmt.Sprintf("periph host init: %v", err)
	}

	bus, err := i2creg.Open(s.busName)
	if err != nil {
		return false, fmt.Sprintf("open I2C bus %q: %v", s.busName, err)
	}

	dev := &i2c.Dev{Addr: mpuAddr, Bus: bus}

	id := make([]byte, 1)
	if err := dev.Tx([]byte{regWhoAmI}, id); err != nil {
		bus.Close()
		return false, fmt.Sprintf("MPU6050 WHO_AM_I read: %v", err)
	}

	// Clear sleep bit, select the gyro X clock.
	if err := dev.Tx([]byte{regPwrMgmt1, 0x01}, nil); err != nil {
		bus.Close()
		return false, fmt.Sprintf("MPU6050 wake: %v", err)
	}

	s.logger.Info("MPU6050 ready",
		zap.String("bus", s.busName),
		zap.Uint8("who_am_i", id[0]),
	)

	s.mu.Lock()
	s.bus = bus
	s.dev = dev
	s.mu.Unlock()
	return true, ""
}

func (s *i2cSource) Start(ctx context.Context) error {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("i2c source: RequestAccess not granted")
	}

	go func() {
		defer close(s.samples)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case t := <-ticker.C:
				sample, err := s.read(dev, t)
				if err != nil {
					s.logger.Warn("MPU6050 read error", zap.Error(err))
					continue
				}
				select {
				case s.samples <- sample:
				default:
				}
			}
		}
	}()
	return nil
}

func (s *i2cSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.bus != nil {
			s.bus.Close()
		}
		s.mu.Unlock()
	})
}

func (s *i2cSource) Samples() <-chan Sample { return s.samples }

// read performs one burst read of accel+gyro and updates the complementary
// filter state.
func (s *i2cSource) read(dev *i2c.Dev, t time.Time) (Sample, error) {
	// Burst read: accel XYZ, temp, gyro XYZ (14 bytes, big endian).
	buf := make([]byte, 14)
	if err := dev.Tx([]byte{regAccelXoutH}, buf); err != nil {
		return Sample{}, fmt.Errorf("burst read: %w", err)
	}

	raw := func(i int) float64 {
		return float64(int16(uint16(buf[i])<<8 | uint16(buf[i+1])))
	}

	ax := raw(0) / accelLSBPerG
	ay := raw(2) / accelLSBPerG
	az := raw(4) / accelLSBPerG
	gx := raw(8) / gyroLSBPerDegS
	gy := raw(10) / gyroLSBPerDegS
	gz := raw(12) / gyroLSBPerDegS

	// Accelerometer tilt estimate.
	accRoll := math.Atan2(ay, az) * 180 / math.Pi
	accPitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180 / math.Pi

	dt := s.interval.Seconds()
	if !s.lastRead.IsZero() {
		dt = t.Sub(s.lastRead).Seconds()
	}
	s.lastRead = t

	// Complementary filter: integrated gyro dominates short term, accel tilt
	// anchors long term.
	s.roll = NormalizeAngle(compAlpha*(s.roll+gx*dt) + (1-compAlpha)*accRoll)
	s.pitch = NormalizeAngle(compAlpha*(s.pitch+gy*dt) + (1-compAlpha)*accPitch)

	return Sample{
		Timestamp:    t,
		Pitch:        s.pitch,
		Roll:         s.roll,
		Yaw:          0,
		Acceleration: Vector3{X: ax, Y: ay, Z: az},
		Gravity:      Vector3{X: -math.Sin(s.pitch * math.Pi / 180), Y: math.Sin(s.roll * math.Pi / 180), Z: -math.Cos(s.roll * math.Pi / 180)},
		RotationRate: Vector3{X: gx, Y: gy, Z: gz},
	}, nil
}
