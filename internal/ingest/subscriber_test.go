package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/bus"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/bus/bustest"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/metrics"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/normalize"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/store"
)

var (
	discard   = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	topics    = []string{"dev/ambient/lux", "dev/ambient/color", "dev/ambient/led"}
)

func newTestSubscriber(st store.Store) (*Subscriber, *metrics.Metrics) {
	m := metrics.New()
	s := New(nil, st, topics, discard, m)
	s.now = func() time.Time { return fixedTime }
	return s, m
}

func allTime() store.Range {
	return store.Range{Start: fixedTime.Add(-time.Hour), End: fixedTime.Add(time.Hour), Limit: store.MaxLimit}
}

func TestHandleMessageStoresRecord(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _ := newTestSubscriber(st)

	require.NoError(t, s.HandleMessage(ctx, "dev/ambient/color", []byte(`{"rgb":[10,20,30],"color":"teal"}`)))

	got, err := st.Latest(ctx, record.KindColor)
	require.NoError(t, err)
	c := got.(*record.Color)
	assert.Equal(t, record.RGB{10, 20, 30}, c.RGB)
	assert.Equal(t, "teal", c.Name)
	assert.True(t, c.Timestamp.Equal(fixedTime), "timestamp comes from the ingestion clock")
	assert.JSONEq(t, `{"rgb":[10,20,30],"color":"teal"}`, string(c.Raw))
}

func TestHandleMessageIgnoresDeviceTimestamp(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _ := newTestSubscriber(st)

	require.NoError(t, s.HandleMessage(ctx, "dev/ambient/led", []byte(`{"led_rgb":[1,2,3],"ts":12345}`)))

	got, err := st.Latest(ctx, record.KindActuator)
	require.NoError(t, err)
	assert.True(t, got.Base().Timestamp.Equal(fixedTime))
}

func TestMalformedMessageDoesNotAffectNext(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, m := newTestSubscriber(st)

	err := s.HandleMessage(ctx, "dev/ambient/lux", []byte(`{"lux":`))
	assert.ErrorIs(t, err, normalize.ErrMalformedPayload)

	require.NoError(t, s.HandleMessage(ctx, "dev/ambient/lux", []byte(`{"lux":42.5}`)))

	got, err := st.Query(ctx, record.KindIlluminance, allTime())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.5, got[0].(*record.Illuminance).Lux)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `ambient_messages_total{kind="lux",outcome="malformed"} 1`)
	assert.Contains(t, rec.Body.String(), `ambient_messages_total{kind="lux",outcome="stored"} 1`)
}

func TestUnrecognizedTopicCreatesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _ := newTestSubscriber(st)

	err := s.HandleMessage(ctx, "dev/ambient/status", []byte(`{"status":"online"}`))
	assert.ErrorIs(t, err, normalize.ErrUnrecognizedTopic)

	for _, k := range record.Kinds {
		got, err := st.Query(ctx, k, allTime())
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

type failingStore struct {
	store.Store
	fail bool
}

func (f *failingStore) Insert(ctx context.Context, rec record.Record) error {
	if f.fail {
		f.fail = false
		return errors.New("disk full")
	}
	return f.Store.Insert(ctx, rec)
}

func TestPersistFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: store.NewMemoryStore(), fail: true}
	s, _ := newTestSubscriber(st)

	assert.Error(t, s.HandleMessage(ctx, "dev/ambient/lux", []byte(`{"lux":1}`)))
	require.NoError(t, s.HandleMessage(ctx, "dev/ambient/lux", []byte(`{"lux":2}`)))

	got, err := st.Query(ctx, record.KindIlluminance, allTime())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].(*record.Illuminance).Lux)
}

func TestRunHandlesQueuedMessagesInOrder(t *testing.T) {
	st := store.NewMemoryStore()
	s, _ := newTestSubscriber(st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i, payload := range []string{`{"lux":1}`, `not json`, `{"lux":2}`, `{"lux":3}`} {
		s.enqueue(nil, fakeMessage{topic: "dev/ambient/lux", payload: []byte(payload), id: uint16(i)})
	}

	assert.Eventually(t, func() bool {
		got, _ := st.Query(context.Background(), record.KindIlluminance, allTime())
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	// Same timestamp for all, so id order is arrival order.
	got, err := st.Query(context.Background(), record.KindIlluminance, allTime())
	require.NoError(t, err)
	assert.Equal(t, 3.0, got[0].(*record.Illuminance).Lux)
	assert.Equal(t, 1.0, got[2].(*record.Illuminance).Lux)

	cancel()
	<-done
	assert.Equal(t, Disconnected, s.State())

	// Once Run has returned, the callback must not block.
	s.enqueue(nil, fakeMessage{topic: "dev/ambient/lux", payload: []byte(`{}`)})
	for i := 0; i < inboxSize+1; i++ {
		s.enqueue(nil, fakeMessage{topic: "dev/ambient/lux", payload: []byte(`{}`)})
	}
}

func TestSubscriberAgainstBroker(t *testing.T) {
	broker := bustest.Start(t)
	st := store.NewMemoryStore()

	conn := bus.New(bus.Options{Broker: broker.URL, ClientID: "ingest-test"}, discard)
	s := New(conn, st, topics, discard, nil)
	assert.Equal(t, Disconnected, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.NoError(t, s.Connect(ctx))
	defer conn.Disconnect(50 * time.Millisecond)

	require.Eventually(t, func() bool { return s.State() == MessageLoop }, 5*time.Second, 10*time.Millisecond)

	// A reconnect re-runs the hook with the same topic set.
	conn.HandleConnect(conn.Client())
	require.Eventually(t, func() bool { return s.State() == MessageLoop }, 5*time.Second, 10*time.Millisecond)

	device := broker.Client(t, "device")
	bustest.Publish(t, device, "dev/ambient/lux", `{"lux":12.5}`)
	bustest.Publish(t, device, "dev/ambient/color", `{"rgb":[1,2`)
	bustest.Publish(t, device, "dev/ambient/color", `{"rgb":[255,0,0],"hsv":{"h":0,"s":1,"v":1},"color":"red"}`)
	bustest.Publish(t, device, "dev/ambient/status", `{"status":"online"}`)

	require.Eventually(t, func() bool {
		c, _ := st.Query(context.Background(), record.KindColor, allTimeFromNow())
		return len(c) == 1
	}, 5*time.Second, 10*time.Millisecond)

	lux, err := st.Query(context.Background(), record.KindIlluminance, allTimeFromNow())
	require.NoError(t, err)
	require.Len(t, lux, 1, "one subscription per topic, no duplicate deliveries")
	assert.Equal(t, 12.5, lux[0].(*record.Illuminance).Lux)

	c, err := st.Latest(context.Background(), record.KindColor)
	require.NoError(t, err)
	assert.Equal(t, "red", c.(*record.Color).Name)
	assert.Equal(t, record.HSV{H: 0, S: 1, V: 1}, c.(*record.Color).HSV)
}

func allTimeFromNow() store.Range {
	now := time.Now().UTC()
	return store.Range{Start: now.Add(-time.Hour), End: now.Add(time.Hour), Limit: store.MaxLimit}
}

type fakeMessage struct {
	topic   string
	payload []byte
	id      uint16
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return m.id }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
