package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

// publishTimeout bounds how long a frame may hold the publisher goroutine.
const publishTimeout = 100 * time.Millisecond

// Publisher is the part of mqtt.Client used to send frames.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// FrameTopic is the topic frames of id are published on.
func FrameTopic(prefix string, id gamepad.ID) string {
	return fmt.Sprintf("%s/%d", prefix, id)
}

// MQTTConsumer publishes every frame as JSON.
type MQTTConsumer struct {
	pub    Publisher
	prefix string
}

func NewMQTTConsumer(pub Publisher, prefix string) *MQTTConsumer {
	return &MQTTConsumer{pub: pub, prefix: prefix}
}

func (c *MQTTConsumer) OnSnapshot(f scheduler.Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		log.Printf("mqtt: json marshal error: %v", err)
		return
	}

	token := c.pub.Publish(FrameTopic(c.prefix, f.ID), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.PublishSkipped.WithLabelValues("mqtt_timeout").Inc()
		return
	}
	if err := token.Error(); err != nil {
		metrics.PublishSkipped.WithLabelValues("mqtt_error").Inc()
		log.Printf("mqtt: publish error: %v", err)
	}
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to broker at %s", broker)
	return client, nil
}
