// Package bus owns the single MQTT connection shared by the ingestion
// subscriber and the command publisher.
//
// The connection is built once in main and passed to both sides explicitly.
// Reconnects are left to paho's own auto-reconnect; components that need to
// act on every (re)connect register a hook with OnConnect before Connect.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when the broker link is down.
var ErrNotConnected = errors.New("mqtt client is not connected")

// Options configure the connection.
type Options struct {
	Broker   string // e.g. tcp://test.mosquitto.org:1883
	ClientID string
	Username string
	Password string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// Conn wraps a paho client plus the hooks fired on each successful connect.
type Conn struct {
	client mqtt.Client
	logger *slog.Logger

	mu        sync.Mutex
	onConnect []func(mqtt.Client)
	onLost    []func(error)
}

// New builds the client; nothing touches the network until Connect.
func New(opts Options, logger *slog.Logger) *Conn {
	c := &Conn{logger: logger}

	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetKeepAlive(opts.KeepAlive)
	co.SetConnectTimeout(opts.ConnectTimeout)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(time.Minute)
	// Subscriptions are re-issued by OnConnect hooks, not replayed by paho.
	co.SetResumeSubs(false)
	// Handlers run one at a time, in arrival order.
	co.SetOrderMatters(true)

	co.SetOnConnectHandler(c.handleConnect)
	co.SetConnectionLostHandler(c.handleLost)
	co.SetReconnectingHandler(func(_ mqtt.Client, co *mqtt.ClientOptions) {
		c.logger.Info("MQTT reconnecting", "broker", opts.Broker)
	})

	c.client = mqtt.NewClient(co)
	return c
}

// NewWithClient wraps an existing client. Hooks registered on the returned
// Conn only fire if the caller wires HandleConnect into that client's options.
func NewWithClient(client mqtt.Client, logger *slog.Logger) *Conn {
	return &Conn{client: client, logger: logger}
}

// Client exposes the underlying paho client.
func (c *Conn) Client() mqtt.Client {
	return c.client
}

// OnConnect registers fn to run after every successful connect and reconnect.
func (c *Conn) OnConnect(fn func(mqtt.Client)) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnConnectionLost registers fn to run whenever the link drops.
func (c *Conn) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.onLost = append(c.onLost, fn)
	c.mu.Unlock()
}

// HandleConnect runs the registered connect hooks.
func (c *Conn) HandleConnect(client mqtt.Client) {
	c.handleConnect(client)
}

func (c *Conn) handleConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected")

	c.mu.Lock()
	hooks := append([]func(mqtt.Client){}, c.onConnect...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(client)
	}
}

func (c *Conn) handleLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)

	c.mu.Lock()
	hooks := append([]func(error){}, c.onLost...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(err)
	}
}

// Connect blocks until the first connection succeeds, fails, or ctx ends.
func (c *Conn) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if err := Await(ctx, token); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Connected reports whether the link is currently up.
func (c *Conn) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Disconnect waits up to quiesce for in-flight work, then closes the link.
func (c *Conn) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce.Milliseconds()))
}

// Await waits for a paho token or for ctx to end.
func Await(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
