// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/calendar"
	"github.com/standsense/standsense/internal/config"
	"github.com/standsense/standsense/internal/notify"
	"github.com/standsense/standsense/internal/posture"
	"github.com/standsense/standsense/internal/scheduler"
)

// RunConsole subscribes to every standsense topic and pretty-prints traffic.
// Useful when bringing up a tracker or debugging the daemon.
func RunConsole() error {
	cfg := config.Get()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("console connected", zap.String("broker", cfg.MQTTBroker))

	subscribe := func(topic string, handler mqtt.MessageHandler) error {
		token := client.Subscribe(topic, 0, handler)
		if token.Wait(); token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		logger.Info("subscribed", zap.String("topic", topic))
		return nil
	}

	if err := subscribe(cfg.TopicPostureState, func(_ mqtt.Client, msg mqtt.Message) {
		var st posture.State
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			logger.Warn("posture state unmarshal", zap.Error(err))
			return
		}
		fmt.Printf("[POSTURE] status=%-11s pitch=%7.2f roll=%7.2f dev=(%.1f, %.1f)\n",
			st.Status, st.Pitch, st.Roll, st.PitchDeviation, st.RollDeviation)
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicPostureEvent, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Printf("[EVENT  ] %s\n", msg.Payload())
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicPhaseTransition, func(_ mqtt.Client, msg mqtt.Message) {
		var tr scheduler.Transition
		if err := json.Unmarshal(msg.Payload(), &tr); err != nil {
			logger.Warn("phase transition unmarshal", zap.Error(err))
			return
		}
		silent := ""
		if !tr.Notify {
			silent = " (silent)"
		}
		fmt.Printf("[PHASE  ] %s -> %s for %s%s\n",
			tr.From.Name, tr.To.Name, tr.To.Duration, silent)
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicNotify, func(_ mqtt.Client, msg mqtt.Message) {
		var n notify.Notification
		if err := json.Unmarshal(msg.Payload(), &n); err != nil {
			logger.Warn("notification unmarshal", zap.Error(err))
			return
		}
		fmt.Printf("[NOTIFY ] %s: %s / %s\n", n.Kind, n.Title, n.Body)
	}); err != nil {
		return err
	}

	if err := subscribe(cfg.TopicBusy, func(_ mqtt.Client, msg mqtt.Message) {
		var st calendar.Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			logger.Warn("busy status unmarshal", zap.Error(err))
			return
		}
		fmt.Printf("[BUSY   ] busy=%t meeting=%t %s\n", st.Busy, st.InMeeting, st.Summary)
	}); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("console shutting down")
	return nil
}
