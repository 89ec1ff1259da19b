// Package command publishes LED commands back to the device.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/bus"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/metrics"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/normalize"
)

var (
	// ErrInvalidCommand means the caller sent something other than three numbers.
	ErrInvalidCommand = errors.New("led must be a list of three numbers")
	// ErrPublishFailed means the bus did not accept the command.
	ErrPublishFailed = errors.New("failed to publish command")
)

// PublishTimeout bounds the wait for paho to hand the packet to the network.
const PublishTimeout = 5 * time.Second

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
}

// Payload is the wire body of a command.
type Payload struct {
	LED [3]int `json:"led"`
}

// Published confirms what went onto the bus.
type Published struct {
	Topic   string  `json:"topic"`
	Payload Payload `json:"payload"`
}

type Publisher struct {
	client  Client
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(client Client, topic string, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{client: client, topic: topic, logger: logger, metrics: m}
}

// DecodeLED turns the "led" value of a decoded JSON body into components.
// Elements must be numbers (numeric strings are accepted); fractions truncate.
func DecodeLED(v any) ([]int, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, ErrInvalidCommand
	}
	if len(list) != 3 {
		return nil, ErrInvalidCommand
	}

	out := make([]int, len(list))
	for i, item := range list {
		if _, isBool := item.(bool); isBool {
			return nil, ErrInvalidCommand
		}
		n, ok := normalize.Int(item)
		if !ok {
			return nil, ErrInvalidCommand
		}
		out[i] = n
	}
	return out, nil
}

// Send clamps components to [0,255] and publishes {"led":[r,g,b]} with QoS 0,
// not retained. Nothing is published when the arity is wrong. There is no retry.
func (p *Publisher) Send(ctx context.Context, components []int) (Published, error) {
	if len(components) != 3 {
		p.metrics.CommandSent("invalid")
		return Published{}, ErrInvalidCommand
	}

	msg := Published{Topic: p.topic}
	for i, c := range components {
		msg.Payload.LED[i] = clamp(c)
	}

	if !p.client.IsConnectionOpen() {
		p.metrics.CommandSent("failed")
		p.logger.Error("command not published", "topic", p.topic, "error", bus.ErrNotConnected)
		return Published{}, fmt.Errorf("%w: %w", ErrPublishFailed, bus.ErrNotConnected)
	}

	body, err := json.Marshal(msg.Payload)
	if err != nil {
		return Published{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	if err := bus.Await(ctx, p.client.Publish(p.topic, 0, false, body)); err != nil {
		p.metrics.CommandSent("failed")
		p.logger.Error("command not published", "topic", p.topic, "error", err)
		return Published{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.metrics.CommandSent("published")
	p.logger.Info("command published", "topic", p.topic, "led", msg.Payload.LED)
	return msg, nil
}

func clamp(v int) int {
	return max(0, min(255, v))
}
