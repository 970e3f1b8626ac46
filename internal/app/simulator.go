// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/config"
	"github.com/standsense/standsense/internal/motion"
)

// simPhase is one leg of the scripted posture scenario.
type simPhase struct {
	name     string
	duration time.Duration
	pitchDeg float64
	// accelSpike adds a vertical acceleration burst at the start of the
	// phase, imitating standing up.
	accelSpike bool
}

// script is the looped scenario: sit upright, drift into a slouch long enough
// to trip the sustained-poor alert, recover, then stand up.
var script = []simPhase{
	{name: "upright", duration: 40 * time.Second, pitchDeg: 0},
	{name: "slouch", duration: 50 * time.Second, pitchDeg: -25},
	{name: "recovered", duration: 20 * time.Second, pitchDeg: -3},
	{name: "standing", duration: 15 * time.Second, pitchDeg: 2, accelSpike: true},
}

// pitchQuaternion builds the orientation for a pure pitch rotation.
func pitchQuaternion(deg float64) motion.Quaternion {
	half := deg * math.Pi / 360
	return motion.Quaternion{W: math.Cos(half), Y: math.Sin(half)}
}

// RunSimulator publishes a scripted raw-motion feed, standing in for real
// tracker hardware during development.
func RunSimulator() error {
	cfg := config.Get()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDSimulator)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("simulator connected",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("topic", cfg.TopicMotionRaw))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	const sampleInterval = 200 * time.Millisecond
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	phaseIdx := 0
	phaseStart := time.Now()
	logger.Info("scenario phase", zap.String("phase", script[0].name))

	for {
		select {
		case t := <-ticker.C:
			ph := script[phaseIdx]
			if t.Sub(phaseStart) >= ph.duration {
				phaseIdx = (phaseIdx + 1) % len(script)
				phaseStart = t
				ph = script[phaseIdx]
				logger.Info("scenario phase", zap.String("phase", ph.name))
			}

			// Small jitter so the feed looks like a live sensor.
			jitter := 1.5 * math.Sin(float64(t.UnixMilli())/900)
			q := pitchQuaternion(ph.pitchDeg + jitter)

			accel := motion.Vector3{Z: 0.01 * jitter}
			if ph.accelSpike && t.Sub(phaseStart) < time.Second {
				accel.Z = 0.6
			}

			reading := motion.RawReading{
				Timestamp:    t,
				Orientation:  q,
				Acceleration: accel,
				Gravity:      motion.Vector3{Z: -1},
				RotationRate: motion.Vector3{},
			}

			payload, err := json.Marshal(reading)
			if err != nil {
				logger.Error("json marshal", zap.Error(err))
				continue
			}
			client.Publish(cfg.TopicMotionRaw, 0, false, payload)

		case sig := <-sigCh:
			logger.Info("simulator shutting down", zap.String("signal", sig.String()))
			return nil
		}
	}
}
