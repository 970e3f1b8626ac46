// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package config loads the daemon configuration from a KEY=VALUE file.
// Defaults are applied once at construction; callers read plain fields and
// never fall back per-read.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string
	MQTTClientIDDaemon    string
	MQTTClientIDConsole   string
	MQTTClientIDWeb       string
	MQTTClientIDSimulator string

	// Topics
	TopicPostureState    string
	TopicPostureEvent    string
	TopicPhaseTransition string
	TopicNotify          string
	TopicBusy            string
	TopicMotionRaw       string

	// Motion source: "mock", "serial", "i2c" or "mqtt"
	MotionSource      string
	SerialPort        string
	SerialBaudRate    uint
	I2CBus            string
	I2CSampleInterval time.Duration
	MotionStaleAfter  time.Duration

	// Posture analyzer
	PitchThresholdDeg    float64
	RollThresholdDeg     float64
	PoorPostureThreshold time.Duration
	UpdateFrequency      time.Duration
	HighFrequencyUpdate  time.Duration
	StandupSpikeG        float64

	// Phase cycle: "sitstand" or "focus"
	CycleMode           string
	SittingDuration     time.Duration
	StandingDuration    time.Duration
	FocusDuration       time.Duration
	ShortBreakDuration  time.Duration
	LongBreakDuration   time.Duration
	LongBreakEvery      int
	CalendarSuppression bool

	// Notification backoff
	BackoffBase     time.Duration
	BackoffExponent float64
	BackoffMax      time.Duration
	GoodResetAfter  time.Duration
	IdleResetAfter  time.Duration

	// Store
	StorePath string

	// Web server
	WebServerPort int

	// Logging
	LogLevel  string
	LogFormat string
}

// Default returns a Config with every tunable at its production default.
// Only MQTT_BROKER has no default and must come from the file.
func Default() *Config {
	return &Config{
		MQTTClientIDDaemon:    "standsense-daemon",
		MQTTClientIDConsole:   "standsense-console",
		MQTTClientIDWeb:       "standsense-web",
		MQTTClientIDSimulator: "standsense-simulator",

		TopicPostureState:    "standsense/posture/state",
		TopicPostureEvent:    "standsense/posture/event",
		TopicPhaseTransition: "standsense/phase/transition",
		TopicNotify:          "standsense/notify",
		TopicBusy:            "standsense/busy",
		TopicMotionRaw:       "standsense/motion/raw",

		MotionSource:      "mock",
		SerialPort:        "/dev/ttyUSB0",
		SerialBaudRate:    115200,
		I2CBus:            "",
		I2CSampleInterval: 100 * time.Millisecond,
		MotionStaleAfter:  2 * time.Second,

		PitchThresholdDeg:    15,
		RollThresholdDeg:     15,
		PoorPostureThreshold: 30 * time.Second,
		UpdateFrequency:      5 * time.Second,
		HighFrequencyUpdate:  time.Second,
		StandupSpikeG:        0.25,

		CycleMode:           "sitstand",
		SittingDuration:     30 * time.Minute,
		StandingDuration:    10 * time.Minute,
		FocusDuration:       25 * time.Minute,
		ShortBreakDuration:  5 * time.Minute,
		LongBreakDuration:   15 * time.Minute,
		LongBreakEvery:      4,
		CalendarSuppression: true,

		BackoffBase:     60 * time.Second,
		BackoffExponent: 1.5,
		BackoffMax:      300 * time.Second,
		GoodResetAfter:  120 * time.Second,
		IdleResetAfter:  1800 * time.Second,

		StorePath:     "standsense.db",
		WebServerPort: 8080,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Package-level singleton guarded for concurrent readers. External code must
// use InitGlobal to set and Get to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file over the defaults and returns a Config.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_DAEMON":
		c.MQTTClientIDDaemon = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_SIMULATOR":
		c.MQTTClientIDSimulator = value

	// Topics
	case "TOPIC_POSTURE_STATE":
		c.TopicPostureState = value
	case "TOPIC_POSTURE_EVENT":
		c.TopicPostureEvent = value
	case "TOPIC_PHASE_TRANSITION":
		c.TopicPhaseTransition = value
	case "TOPIC_NOTIFY":
		c.TopicNotify = value
	case "TOPIC_BUSY":
		c.TopicBusy = value
	case "TOPIC_MOTION_RAW":
		c.TopicMotionRaw = value

	// Motion source
	case "MOTION_SOURCE":
		switch value {
		case "mock", "serial", "i2c", "mqtt":
			c.MotionSource = value
		default:
			return fmt.Errorf("MOTION_SOURCE must be mock, serial, i2c or mqtt, got %q", value)
		}
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q", value)
		}
		c.SerialBaudRate = uint(rate)
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_SAMPLE_INTERVAL_MS":
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid I2C_SAMPLE_INTERVAL_MS %q", value)
		}
		c.I2CSampleInterval = time.Duration(ms) * time.Millisecond
	case "MOTION_STALE_AFTER_MS":
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid MOTION_STALE_AFTER_MS %q", value)
		}
		c.MotionStaleAfter = time.Duration(ms) * time.Millisecond

	// Posture analyzer
	case "PITCH_THRESHOLD_DEG":
		deg, err := strconv.ParseFloat(value, 64)
		if err != nil || deg <= 0 || deg > 180 {
			return fmt.Errorf("PITCH_THRESHOLD_DEG must be in (0, 180], got %q", value)
		}
		c.PitchThresholdDeg = deg
	case "ROLL_THRESHOLD_DEG":
		deg, err := strconv.ParseFloat(value, 64)
		if err != nil || deg <= 0 || deg > 180 {
			return fmt.Errorf("ROLL_THRESHOLD_DEG must be in (0, 180], got %q", value)
		}
		c.RollThresholdDeg = deg
	case "POOR_POSTURE_SECONDS":
		return setSeconds(&c.PoorPostureThreshold, key, value)
	case "UPDATE_FREQUENCY_SECONDS":
		return setSeconds(&c.UpdateFrequency, key, value)
	case "HIGH_FREQUENCY_SECONDS":
		return setSeconds(&c.HighFrequencyUpdate, key, value)
	case "STANDUP_SPIKE_G":
		g, err := strconv.ParseFloat(value, 64)
		if err != nil || g <= 0 {
			return fmt.Errorf("STANDUP_SPIKE_G must be positive, got %q", value)
		}
		c.StandupSpikeG = g

	// Phase cycle
	case "CYCLE_MODE":
		switch value {
		case "sitstand", "focus":
			c.CycleMode = value
		default:
			return fmt.Errorf("CYCLE_MODE must be sitstand or focus, got %q", value)
		}
	case "SITTING_MINUTES":
		return setMinutes(&c.SittingDuration, key, value)
	case "STANDING_MINUTES":
		return setMinutes(&c.StandingDuration, key, value)
	case "FOCUS_MINUTES":
		return setMinutes(&c.FocusDuration, key, value)
	case "SHORT_BREAK_MINUTES":
		return setMinutes(&c.ShortBreakDuration, key, value)
	case "LONG_BREAK_MINUTES":
		return setMinutes(&c.LongBreakDuration, key, value)
	case "LONG_BREAK_EVERY":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("LONG_BREAK_EVERY must be at least 1, got %q", value)
		}
		c.LongBreakEvery = n
	case "CALENDAR_SUPPRESSION":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid CALENDAR_SUPPRESSION %q: %w", value, err)
		}
		c.CalendarSuppression = b

	// Notification backoff
	case "BACKOFF_BASE_SECONDS":
		return setSeconds(&c.BackoffBase, key, value)
	case "BACKOFF_EXPONENT":
		exp, err := strconv.ParseFloat(value, 64)
		if err != nil || exp <= 1 {
			return fmt.Errorf("BACKOFF_EXPONENT must be greater than 1, got %q", value)
		}
		c.BackoffExponent = exp
	case "BACKOFF_MAX_SECONDS":
		return setSeconds(&c.BackoffMax, key, value)
	case "GOOD_RESET_SECONDS":
		return setSeconds(&c.GoodResetAfter, key, value)
	case "IDLE_RESET_SECONDS":
		return setSeconds(&c.IdleResetAfter, key, value)

	// Store
	case "STORE_PATH":
		c.StorePath = value

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q", value)
		}
		c.WebServerPort = port

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setSeconds(dst *time.Duration, key, value string) error {
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return fmt.Errorf("%s must be a positive number of seconds, got %q", key, value)
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}

func setMinutes(dst *time.Duration, key, value string) error {
	mins, err := strconv.Atoi(value)
	if err != nil || mins <= 0 {
		return fmt.Errorf("%s must be a positive number of minutes, got %q", key, value)
	}
	*dst = time.Duration(mins) * time.Minute
	return nil
}

// validate checks cross-field requirements after the file is applied.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("BACKOFF_MAX_SECONDS must be at least BACKOFF_BASE_SECONDS")
	}
	if c.MotionSource == "serial" && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required when MOTION_SOURCE=serial")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Runs once even
// if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
