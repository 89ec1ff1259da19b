// Package bustest runs an in-process MQTT broker for tests.
package bustest

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

// Broker is a running mochi server.
type Broker struct {
	Server *mochi.Server
	URL    string // tcp://127.0.0.1:<port>
}

// Start serves a broker that accepts every client on a free local port and
// stops it when the test ends.
func Start(t *testing.T) *Broker {
	t.Helper()

	addr := freeAddr(t)
	server := mochi.New(&mochi.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	require.NoError(t, server.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })

	return &Broker{Server: server, URL: "tcp://" + addr}
}

// Client connects a plain paho client to the broker, used to play the device.
func (b *Broker) Client(t *testing.T, id string) mqtt.Client {
	t.Helper()

	opts := mqtt.NewClientOptions().AddBroker(b.URL).SetClientID(id)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second), "connect timed out")
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(50) })
	return client
}

// Publish sends payload with QoS 0 and waits for the client to flush it.
func Publish(t *testing.T, client mqtt.Client, topic, payload string) {
	t.Helper()
	token := client.Publish(topic, 0, false, payload)
	require.True(t, token.WaitTimeout(5*time.Second), "publish timed out")
	require.NoError(t, token.Error())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return fmt.Sprintf("127.0.0.1:%d", l.Addr().(*net.TCPAddr).Port)
}
