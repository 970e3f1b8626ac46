// Package calendar exposes the busy/meeting signal consulted before
// interrupting the user.
package calendar

import (
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// BusySignal is read-only from the core's perspective and is polled at each
// decision point, never cached across decisions by callers.
type BusySignal interface {
	// IsCurrentlyBusy reports whether the user should not be interrupted at
	// all (meeting, focus block, do-not-disturb).
	IsCurrentlyBusy() bool

	// IsInMeeting reports specifically a calendar meeting in progress.
	IsInMeeting() bool
}

// Status is the wire format published on the busy topic by the calendar
// agent.
type Status struct {
	Busy      bool   `json:"busy"`
	InMeeting bool   `json:"in_meeting"`
	Summary   string `json:"summary,omitempty"`
}

// StaticSignal is a fixed BusySignal, used when no calendar agent is
// configured and in tests.
type StaticSignal struct {
	Busy    bool
	Meeting bool
}

func (s StaticSignal) IsCurrentlyBusy() bool { return s.Busy }
func (s StaticSignal) IsInMeeting() bool     { return s.Meeting }

// MQTTSignal tracks the latest Status published by a calendar agent. A topic
// that has never published reads as not busy.
type MQTTSignal struct {
	mu     sync.RWMutex
	status Status
	logger *zap.Logger
}

// NewMQTTSignal subscribes to the busy topic on an already connected client.
func NewMQTTSignal(client mqtt.Client, topic string, logger *zap.Logger) (*MQTTSignal, error) {
	s := &MQTTSignal{logger: logger}

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			logger.Warn("busy status unmarshal error", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.status = st
		s.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return s, nil
}

func (s *MQTTSignal) IsCurrentlyBusy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Busy || s.status.InMeeting
}

func (s *MQTTSignal) IsInMeeting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.InMeeting
}
