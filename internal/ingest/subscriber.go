// Package ingest is the write path: MQTT message -> normalized record -> store.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/bus"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/metrics"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/normalize"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/store"
)

// State of the subscriber's connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	MessageLoop
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case MessageLoop:
		return "message_loop"
	}
	return "unknown"
}

// inboxSize bounds how far the paho callback can run ahead of the store.
const inboxSize = 64

type message struct {
	topic   string
	payload []byte
}

// Subscriber receives telemetry and persists one record per valid message.
// Messages are handled one at a time, in arrival order, on the goroutine
// that calls Run.
type Subscriber struct {
	conn    *bus.Conn
	store   store.Store
	topics  []string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	state      atomic.Int32
	inbox      chan message
	subscribed chan struct{}
	done       chan struct{}
	doneOnce   sync.Once
}

// New wires the subscriber to conn: every (re)connect re-subscribes the same
// topic set. conn may be nil when messages are fed through HandleMessage only.
func New(conn *bus.Conn, st store.Store, topics []string, logger *slog.Logger, m *metrics.Metrics) *Subscriber {
	s := &Subscriber{
		conn:       conn,
		store:      st,
		topics:     append([]string(nil), topics...),
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		inbox:      make(chan message, inboxSize),
		subscribed: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	if conn != nil {
		conn.OnConnect(s.subscribe)
		conn.OnConnectionLost(func(error) {
			// paho is already reconnecting on its own.
			s.setState(Connecting)
			s.metrics.SetBusConnected(false)
		})
	}
	return s
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// Connect opens the bus connection and blocks until the first connect
// succeeds or fails. Subscribing happens in the connect hook.
func (s *Subscriber) Connect(ctx context.Context) error {
	s.setState(Connecting)
	if err := s.conn.Connect(ctx); err != nil {
		s.setState(Disconnected)
		return err
	}
	return nil
}

// subscribe runs on every successful (re)connect. SubscribeMultiple replaces
// the per-topic route, so repeated reconnects never stack handlers.
func (s *Subscriber) subscribe(client mqtt.Client) {
	s.setState(Connecting)
	s.metrics.SetBusConnected(true)

	filters := make(map[string]byte, len(s.topics))
	for _, t := range s.topics {
		filters[t] = 0
	}

	token := client.SubscribeMultiple(filters, s.enqueue)
	if !token.WaitTimeout(10 * time.Second) {
		s.logger.Error("subscribe timed out", "topics", s.topics)
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("subscribe failed", "topics", s.topics, "error", err)
		return
	}

	s.setState(Subscribed)
	s.logger.Info("listening on topics", "topics", s.topics)

	select {
	case s.subscribed <- struct{}{}:
	default:
	}
}

// enqueue is the paho callback. It blocks while the inbox is full, which
// holds back paho's router, and gives up once Run has returned.
func (s *Subscriber) enqueue(_ mqtt.Client, m mqtt.Message) {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())

	select {
	case s.inbox <- message{topic: m.Topic(), payload: payload}:
	case <-s.done:
	}
}

// Run handles queued messages until ctx is cancelled. A message already
// being handled is finished even if ctx ends meanwhile.
func (s *Subscriber) Run(ctx context.Context) {
	defer s.doneOnce.Do(func() { close(s.done) })

	for {
		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return
		case <-s.subscribed:
			s.state.CompareAndSwap(int32(Subscribed), int32(MessageLoop))
		case m := <-s.inbox:
			if s.State() == Subscribed {
				s.state.CompareAndSwap(int32(Subscribed), int32(MessageLoop))
			}
			_ = s.HandleMessage(context.WithoutCancel(ctx), m.topic, m.payload)
		}
	}
}

// HandleMessage normalizes and stores one message, stamping it with the
// current time. Every failure is logged and counted here; the returned error
// is informational only.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	rec, err := normalize.Normalize(topic, payload, s.now().UTC())
	switch {
	case errors.Is(err, normalize.ErrUnrecognizedTopic):
		s.logger.Debug("ignoring message on unrecognized topic", "topic", topic)
		s.metrics.MessageHandled("", metrics.OutcomeUnrecognized)
		return err
	case err != nil:
		s.logger.Warn("dropping malformed message", "topic", topic, "error", err)
		kind, _ := normalize.KindForTopic(topic)
		s.metrics.MessageHandled(string(kind), metrics.OutcomeMalformed)
		return err
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.Error("failed to persist record", "topic", topic, "kind", rec.Kind(), "error", err)
		s.metrics.MessageHandled(string(rec.Kind()), metrics.OutcomePersistError)
		return err
	}

	s.logger.Debug("record stored", "kind", rec.Kind(), "id", rec.Base().ID)
	s.metrics.MessageHandled(string(rec.Kind()), metrics.OutcomeStored)
	return nil
}
