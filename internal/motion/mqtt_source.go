package motion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// RawReading is the wire format published on the raw-motion topic by remote
// trackers and by the simulator.
type RawReading struct {
	Timestamp    time.Time  `json:"timestamp"`
	Orientation  Quaternion `json:"orientation"`
	Acceleration Vector3    `json:"acceleration"`
	Gravity      Vector3    `json:"gravity"`
	RotationRate Vector3    `json:"rotation_rate"`
}

// mqttSource consumes raw readings from an MQTT topic, for setups where the
// tracker hardware hangs off another machine on the network.
type mqttSource struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger

	// mu orders handler deliveries against Stop: paho runs the subscribe
	// handler on its own goroutines, so the channel may only be closed once
	// no delivery can be mid-send.
	mu      sync.Mutex
	stopped bool

	samples  chan Sample
	stopOnce sync.Once
}

// NewMQTTSource creates a motion source subscribed to the given raw-motion
// topic on an already connected client.
func NewMQTTSource(client mqtt.Client, topic string, logger *zap.Logger) Source {
	return &mqttSource{
		client:  client,
		topic:   topic,
		logger:  logger,
		samples: make(chan Sample, 16),
	}
}

func (m *mqttSource) Name() string { return "mqtt:" + m.topic }

func (m *mqttSource) Available() (bool, string) {
	if !m.client.IsConnected() {
		return false, "MQTT client not connected"
	}
	return true, ""
}

func (m *mqttSource) RequestAccess(ctx context.Context) (bool, string) {
	if !m.client.IsConnected() {
		return false, "MQTT client not connected"
	}
	return true, ""
}

func (m *mqttSource) Start(ctx context.Context) error {
	token := m.client.Subscribe(m.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var raw RawReading
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
			m.logger.Warn("raw motion unmarshal error", zap.Error(err))
			return
		}

		ts := raw.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}

		m.deliver(NewSample(ts, raw.Orientation, raw.Acceleration, raw.Gravity, raw.RotationRate))
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", m.topic, token.Error())
	}

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// deliver hands a sample to the consumer, dropping it if the channel is full
// or the source has stopped. The send is non-blocking, so holding mu never
// stalls a paho handler.
func (m *mqttSource) deliver(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	select {
	case m.samples <- s:
	default:
	}
}

func (m *mqttSource) Stop() {
	m.stopOnce.Do(func() {
		if m.client != nil && m.client.IsConnected() {
			m.client.Unsubscribe(m.topic)
		}
		// An unsubscribe token does not cover handlers already dispatched;
		// close only once no delivery can race the closed channel.
		m.mu.Lock()
		m.stopped = true
		close(m.samples)
		m.mu.Unlock()
	})
}

func (m *mqttSource) Samples() <-chan Sample { return m.samples }
