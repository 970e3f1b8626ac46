// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "standsense.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=tcp://localhost:1883\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "standsense/posture/state", cfg.TopicPostureState)
	assert.Equal(t, "mock", cfg.MotionSource)
	assert.Equal(t, 15.0, cfg.PitchThresholdDeg)
	assert.Equal(t, 30*time.Second, cfg.PoorPostureThreshold)
	assert.Equal(t, 5*time.Second, cfg.UpdateFrequency)
	assert.Equal(t, 60*time.Second, cfg.BackoffBase)
	assert.Equal(t, 300*time.Second, cfg.BackoffMax)
	assert.Equal(t, 30*time.Minute, cfg.SittingDuration)
	assert.Equal(t, "sitstand", cfg.CycleMode)
}

func TestLoadOverridesAndComments(t *testing.T) {
	path := writeConfig(t, `
# Standsense daemon configuration
MQTT_BROKER=tcp://broker:1883
MOTION_SOURCE=serial
SERIAL_PORT=/dev/ttyACM0
SERIAL_BAUD_RATE=9600

PITCH_THRESHOLD_DEG=20
POOR_POSTURE_SECONDS=45
CYCLE_MODE=focus
FOCUS_MINUTES=50
LONG_BREAK_EVERY=3
CALENDAR_SUPPRESSION=false
BACKOFF_EXPONENT=2.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.MotionSource)
	assert.Equal(t, "/dev/ttyACM0", cfg.SerialPort)
	assert.Equal(t, uint(9600), cfg.SerialBaudRate)
	assert.Equal(t, 20.0, cfg.PitchThresholdDeg)
	assert.Equal(t, 45*time.Second, cfg.PoorPostureThreshold)
	assert.Equal(t, "focus", cfg.CycleMode)
	assert.Equal(t, 50*time.Minute, cfg.FocusDuration)
	assert.Equal(t, 3, cfg.LongBreakEvery)
	assert.False(t, cfg.CalendarSuppression)
	assert.Equal(t, 2.0, cfg.BackoffExponent)
}

func TestLoadMissingBroker(t *testing.T) {
	path := writeConfig(t, "LOG_LEVEL=debug\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT_BROKER")
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"unknown key", "FROBNICATE=1"},
		{"malformed line", "JUSTAKEY"},
		{"bad source", "MOTION_SOURCE=webcam"},
		{"zero threshold", "PITCH_THRESHOLD_DEG=0"},
		{"threshold over range", "ROLL_THRESHOLD_DEG=181"},
		{"negative seconds", "POOR_POSTURE_SECONDS=-5"},
		{"zero minutes", "SITTING_MINUTES=0"},
		{"exponent at one", "BACKOFF_EXPONENT=1"},
		{"bad port", "WEB_SERVER_PORT=70000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "MQTT_BROKER=tcp://x:1883\n"+tc.line+"\n")
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMaxBelowBase(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=tcp://x:1883\nBACKOFF_BASE_SECONDS=120\nBACKOFF_MAX_SECONDS=60\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKOFF_MAX_SECONDS")
}

func TestLoadSerialRequiresPort(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=tcp://x:1883\nMOTION_SOURCE=serial\nSERIAL_PORT=\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERIAL_PORT")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.Error(t, err)
}
