package notify

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification is one outward alert. Delivery is fire-and-forget: a failed
// send is logged and dropped, never retried here (the backoff controller is
// what prevents storms, independent of delivery success).
type Notification struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound bool   `json:"sound"`
}

// NewNotification builds a Notification with a fresh identifier.
func NewNotification(kind, title, body string, sound bool) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Kind:  kind,
		Title: title,
		Body:  body,
		Sound: sound,
	}
}

// Notifier is the outward notification delivery collaborator.
type Notifier interface {
	Notify(n Notification)
}

// MQTTNotifier publishes notifications as JSON to a topic, where a desktop
// agent turns them into user-visible alerts.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewMQTTNotifier creates a notifier publishing on an already connected
// client.
func NewMQTTNotifier(client mqtt.Client, topic string, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, logger: logger}
}

// Notify publishes without blocking the caller; the publish result is
// checked on a separate goroutine and failures are logged only.
func (m *MQTTNotifier) Notify(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		m.logger.Error("notification marshal error", zap.Error(err))
		return
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			m.logger.Warn("notification delivery failed",
				zap.String("id", n.ID),
				zap.Error(token.Error()),
			)
		}
	}()
}

// LogNotifier writes notifications to the structured log. Used when no
// delivery agent is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notification) {
	l.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", n.Kind),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Bool("sound", n.Sound),
	)
}
