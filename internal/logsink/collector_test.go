package logsink

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/bus/bustest"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/logging"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestAppendToFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c, err := New(dir, nil, discard)
	require.NoError(t, err)

	require.NoError(t, c.Append("logs/ambient-match", []byte(`{"msg":"one"}`)))
	require.NoError(t, c.Append("logs/ambient-match", []byte("{\"msg\":\"two\"}\n")))
	require.NoError(t, c.Append("logs/other/extra", []byte("x")))

	data, err := os.ReadFile(filepath.Join(dir, "ambient-match.log"))
	require.NoError(t, err)
	assert.Equal(t, "{\"msg\":\"one\"}\n{\"msg\":\"two\"}\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "other.log"))
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data))
}

func TestAppendToWriter(t *testing.T) {
	var out bytes.Buffer
	c, err := New("", &out, discard)
	require.NoError(t, err)

	require.NoError(t, c.Append("logs/ambient-match", []byte("hello")))
	assert.Equal(t, "[ambient-match] hello\n", out.String())
}

func TestAppendRejectsBadTopics(t *testing.T) {
	c, err := New(t.TempDir(), nil, discard)
	require.NoError(t, err)

	for _, topic := range []string{"logs", "logs/", "logs/..", `logs/a\b`} {
		assert.ErrorIs(t, c.Append(topic, []byte("x")), ErrBadTopic, topic)
	}
}

func TestCollectsForwardedLogs(t *testing.T) {
	broker := bustest.Start(t)
	out := &syncBuffer{}
	c, err := New("", out, discard)
	require.NoError(t, err)

	collector := broker.Client(t, "collector")
	token := collector.Subscribe("logs/#", 0, c.HandleMessage)
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	service := broker.Client(t, "service")
	logger := logging.New(io.Discard, logging.Options{Extra: logging.NewMqttLogWriter(service, "logs/ambient-match")})
	logger.Info("forwarded line")

	assert.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, `[ambient-match] {`) && strings.Contains(s, `"msg":"forwarded line"`)
	}, 5*time.Second, 10*time.Millisecond)
}

// syncBuffer lets the test read while the paho goroutine writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
