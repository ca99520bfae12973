package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/bluegauge/internal/infrastructure/mqtt"
)

// Publisher is the part of *mqtt.Client the notifier uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTNotifier mirrors delivered notifications to
// bluegauge/notification/<category>.
type MQTTNotifier struct {
	pub Publisher
	qos byte
}

func NewMQTTNotifier(pub Publisher, qos byte) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, qos: qos}
}

func (*MQTTNotifier) Name() string { return "mqtt" }

type mqttNotification struct {
	Category string `json:"category"`
	Identity string `json:"identity"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Battery  any    `json:"battery"`
	At       string `json:"at"`
}

func (m *MQTTNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(mqttNotification{
		Category: n.Category.String(),
		Identity: n.Identity,
		Title:    n.Title,
		Body:     n.Body,
		Battery:  n.Event.Device.Battery,
		At:       n.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	return m.pub.Publish(mqtt.Topics{}.Notification(n.Category.String()), payload, m.qos, false)
}
