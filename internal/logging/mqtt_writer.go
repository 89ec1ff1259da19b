package logging

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the part of mqtt.Client the writer needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
}

// MqttLogWriter is an io.Writer that forwards every log line to an MQTT topic.
type MqttLogWriter struct {
	client Publisher
	topic  string
}

func NewMqttLogWriter(client Publisher, topic string) *MqttLogWriter {
	return &MqttLogWriter{client: client, topic: topic}
}

// Write publishes p with QoS 0 and never waits for the token: logging must
// not slow the caller down. Lines written while the link is down are dropped.
func (w *MqttLogWriter) Write(p []byte) (int, error) {
	if !w.client.IsConnectionOpen() {
		return len(p), nil
	}

	// slog reuses p after Write returns.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}
