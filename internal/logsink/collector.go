// Package logsink collects log lines forwarded over MQTT into per-service files.
package logsink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrBadTopic is returned for topics that do not name a service.
var ErrBadTopic = errors.New("log topic must look like <prefix>/<service>")

// Collector appends each received line to <dir>/<service>.log, or to Out
// when dir is empty. The service is the second topic level, e.g.
// "logs/ambient-match" -> ambient-match.log.
type Collector struct {
	dir    string
	out    io.Writer
	logger *slog.Logger

	mu sync.Mutex // serializes appends to the same file
}

// New prepares dir (created when missing). An empty dir streams to out.
func New(dir string, out io.Writer, logger *slog.Logger) (*Collector, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create log directory: %w", err)
		}
	}
	return &Collector{dir: dir, out: out, logger: logger}, nil
}

// HandleMessage is a paho message handler.
func (c *Collector) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := c.Append(msg.Topic(), msg.Payload()); err != nil {
		c.logger.Warn("log line dropped", "topic", msg.Topic(), "error", err)
	}
}

// Append stores one line, adding the trailing newline if it is missing.
func (c *Collector) Append(topic string, line []byte) error {
	service, err := serviceName(topic)
	if err != nil {
		return err
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line[:len(line):len(line)], '\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		_, err := fmt.Fprintf(c.out, "[%s] %s", service, line)
		return err
	}

	// Open-write-close on each line keeps external log rotation working.
	f, err := os.OpenFile(filepath.Join(c.dir, service+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}

func serviceName(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", ErrBadTopic
	}
	name := parts[1]
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\`) {
		return "", ErrBadTopic
	}
	return name, nil
}
