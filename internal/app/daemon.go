// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the standsense components into runnable programs: the
// daemon, the web dashboard, the console subscriber and the simulator.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/standsense/standsense/internal/calendar"
	"github.com/standsense/standsense/internal/config"
	"github.com/standsense/standsense/internal/motion"
	"github.com/standsense/standsense/internal/notify"
	"github.com/standsense/standsense/internal/posture"
	"github.com/standsense/standsense/internal/scheduler"
	"github.com/standsense/standsense/internal/store"
	"github.com/standsense/standsense/internal/timeutil"
)

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	var zc zap.Config
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// connectMQTT connects a client with the shared option set.
func connectMQTT(cfg *config.Config, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	return client, nil
}

// newMotionSource selects and constructs the motion source named in config.
func newMotionSource(cfg *config.Config, client mqtt.Client, logger *zap.Logger) (motion.Source, error) {
	switch cfg.MotionSource {
	case "mock":
		return motion.NewMockSource(cfg.I2CSampleInterval), nil
	case "serial":
		return motion.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate, logger), nil
	case "i2c":
		return motion.NewI2CSource(cfg.I2CBus, cfg.I2CSampleInterval, logger), nil
	case "mqtt":
		return motion.NewMQTTSource(client, cfg.TopicMotionRaw, logger), nil
	default:
		return nil, fmt.Errorf("unknown motion source %q", cfg.MotionSource)
	}
}

// phaseList builds the configured phase cycle.
func phaseList(cfg *config.Config) []scheduler.Phase {
	if cfg.CycleMode == "focus" {
		return scheduler.FocusCycle(cfg.FocusDuration, cfg.ShortBreakDuration, cfg.LongBreakDuration, cfg.LongBreakEvery)
	}
	return scheduler.SitStandCycle(cfg.SittingDuration, cfg.StandingDuration)
}

// RunDaemon runs the standsense daemon: motion in, posture analysis, phase
// scheduling, rate-limited notifications out, everything mirrored onto MQTT.
func RunDaemon() error {
	cfg := config.Get()
	clock := timeutil.RealClock{}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting standsense daemon",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("motion_source", cfg.MotionSource),
		zap.String("cycle_mode", cfg.CycleMode))

	client, err := connectMQTT(cfg, cfg.MQTTClientIDDaemon)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Busy signal: calendar agent over MQTT, or a permanent "free" stub.
	var busy calendar.BusySignal = calendar.StaticSignal{}
	if cfg.CalendarSuppression {
		sig, err := calendar.NewMQTTSignal(client, cfg.TopicBusy, logger)
		if err != nil {
			return fmt.Errorf("subscribe busy topic: %w", err)
		}
		busy = sig
	}

	notifier := notify.NewMQTTNotifier(client, cfg.TopicNotify, logger)

	backoff := notify.NewController(notify.BackoffConfig{
		Base:                 cfg.BackoffBase,
		Exponent:             cfg.BackoffExponent,
		Max:                  cfg.BackoffMax,
		RequiredGoodDuration: cfg.GoodResetAfter,
		ResetAfter:           cfg.IdleResetAfter,
	}, clock, logger, busy.IsInMeeting)

	// Component callbacks run on the component's own locked paths, so they
	// only hand off to buffered channels drained by the loop below.
	events := make(chan posture.Event, 16)
	states := make(chan posture.State, 16)
	transitions := make(chan scheduler.Transition, 16)

	enqueueEvent := func(e posture.Event) {
		select {
		case events <- e:
		default:
			logger.Warn("event queue full, dropping", zap.Int("kind", int(e.Kind)))
		}
	}

	analyzer := posture.NewAnalyzer(posture.Config{
		PitchThreshold:       cfg.PitchThresholdDeg,
		RollThreshold:        cfg.RollThresholdDeg,
		PoorPostureThreshold: cfg.PoorPostureThreshold,
		UpdateFrequency:      cfg.UpdateFrequency,
		HighFrequencyUpdate:  cfg.HighFrequencyUpdate,
	}, clock, logger, enqueueEvent)

	analyzer.Subscribe(func(st posture.State) {
		select {
		case states <- st:
		default:
		}
	})

	standupCfg := posture.DefaultStandupConfig()
	standupCfg.SpikeThreshold = cfg.StandupSpikeG
	standup := posture.NewStandupAnalyzer(standupCfg, clock, logger, enqueueEvent)

	sched := scheduler.New(clock, logger, busy.IsCurrentlyBusy, func(tr scheduler.Transition) {
		select {
		case transitions <- tr:
		default:
			logger.Warn("transition queue full, dropping", zap.String("to", tr.To.Name))
		}
	})
	sched.SetSuppressWhenBusy(cfg.CalendarSuppression)

	if err := sched.Start(phaseList(cfg)...); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Motion source; a denied source degrades to noData instead of exiting.
	src, err := newMotionSource(cfg, client, logger)
	if err != nil {
		return err
	}

	var samples <-chan motion.Sample
	if ok, reason := src.RequestAccess(ctx); !ok {
		logger.Warn("motion source unavailable, running without motion data",
			zap.String("source", src.Name()), zap.String("reason", reason))
		analyzer.SetNoData()
	} else if err := src.Start(ctx); err != nil {
		logger.Warn("motion source failed to start, running without motion data",
			zap.String("source", src.Name()), zap.Error(err))
		analyzer.SetNoData()
	} else {
		defer src.Stop()
		samples = src.Samples()
		logger.Info("motion source started", zap.String("source", src.Name()))
	}

	freshness := motion.NewFreshnessTracker(clock, cfg.MotionStaleAfter)

	watchdog := clock.NewTicker(time.Second)
	defer watchdog.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lastTransition := clock.Now()

	for {
		select {
		case s, open := <-samples:
			if !open {
				logger.Warn("motion source closed its sample channel")
				samples = nil
				continue
			}
			feedSample(s, freshness, analyzer, standup, backoff)

		case <-watchdog.C():
			if samples != nil && !freshness.Fresh() {
				analyzer.SetNoData()
			}

		case st := <-states:
			publishJSON(client, cfg.TopicPostureState, st, logger)

		case e := <-events:
			handleEvent(e, backoff, notifier, db, client, cfg, logger)

		case tr := <-transitions:
			dwell := tr.At.Sub(lastTransition)
			lastTransition = tr.At
			if err := db.RecordTransition(tr.At, tr.From.Name, tr.To.Name, dwell, tr.Notify); err != nil {
				logger.Error("record transition", zap.Error(err))
			}
			publishJSON(client, cfg.TopicPhaseTransition, tr, logger)
			if tr.Notify {
				notifier.Notify(notify.NewNotification("phase",
					phaseTitle(tr.To.Name),
					phaseBody(tr.To),
					false))
			}

		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		}
	}
}

// feedSample routes one reading into the analyzers. A reading without
// meaningful data (all-zero gravity) counts as sensor silence: it neither
// refreshes the freshness signal nor reaches the state machines, so the
// watchdog drops to noData exactly as if nothing had arrived.
func feedSample(s motion.Sample, freshness *motion.FreshnessTracker, analyzer *posture.Analyzer, standup *posture.StandupAnalyzer, backoff *notify.Controller) {
	if !motion.Valid(s.Gravity) {
		return
	}
	freshness.Mark()
	analyzer.ProcessSample(s)
	standup.ProcessSample(s)
	backoff.ObserveCondition(analyzer.Snapshot().Status == posture.StatusGood)
}

// handleEvent routes one analyzer event: posture alerts go through the
// backoff gate, stand-up detections are recorded and cool the alert ladder.
func handleEvent(e posture.Event, backoff *notify.Controller, notifier notify.Notifier, db *store.Store, client mqtt.Client, cfg *config.Config, logger *zap.Logger) {
	switch e.Kind {
	case posture.EventPoorPostureSustained:
		detail := fmt.Sprintf("pitch_dev=%.1f roll_dev=%.1f", e.PitchDeviation, e.RollDeviation)
		publishJSON(client, cfg.TopicPostureEvent, map[string]any{
			"kind": "poor_posture_sustained", "at": e.At, "detail": detail,
		}, logger)
		if err := db.RecordEvent(uuid.NewString(), e.At, "poor_posture_sustained", detail); err != nil {
			logger.Error("record event", zap.Error(err))
		}
		if !backoff.ShouldNotify() {
			logger.Debug("posture alert held back", zap.String("detail", detail))
			return
		}
		msg := backoff.CurrentMessage()
		n := notify.NewNotification("posture", msg.Title, msg.Body, true)
		notifier.Notify(n)
		backoff.NoteSent()
		if err := db.RecordEvent(n.ID, e.At, "notification_sent", n.Kind); err != nil {
			logger.Error("record event", zap.Error(err))
		}

	case posture.EventStoodUp:
		publishJSON(client, cfg.TopicPostureEvent, map[string]any{
			"kind": "stood_up", "at": e.At,
		}, logger)
		if err := db.RecordEvent(uuid.NewString(), e.At, "stood_up", ""); err != nil {
			logger.Error("record event", zap.Error(err))
		}
		// Rising from the chair is a posture break; let it open a good streak.
		backoff.ObserveCondition(true)
	}
}

// publishJSON marshals v and publishes it fire-and-forget.
func publishJSON(client mqtt.Client, topic string, v any, logger *zap.Logger) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Error("json marshal", zap.String("topic", topic), zap.Error(err))
		return
	}
	client.Publish(topic, 0, true, payload)
}

func phaseTitle(name string) string {
	switch name {
	case "standing":
		return "Time to stand"
	case "sitting":
		return "You can sit down"
	case "focus":
		return "Back to focus"
	case "shortBreak", "longBreak":
		return "Break time"
	default:
		return "Phase change"
	}
}

func phaseBody(p scheduler.Phase) string {
	return fmt.Sprintf("Next up: %s for %s.", p.Name, p.Duration)
}
