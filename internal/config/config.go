// Package config loads service settings from the environment (12-factor).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTopics are the device's telemetry topics.
var DefaultTopics = []string{
	"LazaroNicolas/ambient/lux",
	"LazaroNicolas/ambient/color",
	"LazaroNicolas/ambient/led",
}

// Config holds everything the service needs at startup.
type Config struct {
	// MQTT
	MQTTHost     string
	MQTTPort     int
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string `json:"-"`
	Topics       []string // subscribed telemetry topics
	CommandTopic string   // LED commands are published here

	// Storage
	DatabaseURL string // memory://, sqlite://path or postgres://...
	ValkeyAddr  string // empty disables the latest-value cache

	// App
	HTTPPort        int
	LogLevel        string
	LogFormat       string // json or console
	LogTopic        string // empty disables MQTT log forwarding
	ShutdownTimeout time.Duration
}

// Broker returns the paho broker URL.
func (c Config) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTHost, c.MQTTPort)
}

// Load reads the environment, falling back to local-development defaults.
func Load() (Config, error) {
	cfg := Config{
		MQTTHost:     getEnv("MQTT_HOST", "test.mosquitto.org"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "ambient-match-"+uuid.NewString()[:8]),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		Topics:       splitList(getEnv("MQTT_TOPICS", strings.Join(DefaultTopics, ","))),
		CommandTopic: getEnv("MQTT_TOPIC_CMD", "LazaroNicolas/ambient/cmd"),

		DatabaseURL: getEnv("DB_URL", "sqlite://ambient.db"),
		ValkeyAddr:  getEnv("VALKEY_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogTopic:  getEnv("LOG_TOPIC", ""),
	}

	var err error
	if cfg.MQTTPort, err = parsePort("MQTT_PORT", getEnv("MQTT_PORT", "1883")); err != nil {
		return Config{}, err
	}
	// FLASK_PORT is still honoured so old deployment files keep working.
	if cfg.HTTPPort, err = parsePort("HTTP_PORT", getEnv("HTTP_PORT", getEnv("FLASK_PORT", "5000"))); err != nil {
		return Config{}, err
	}

	timeout := getEnv("SHUTDOWN_TIMEOUT", "5s")
	if cfg.ShutdownTimeout, err = time.ParseDuration(timeout); err != nil || cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q", timeout)
	}

	if len(cfg.Topics) == 0 {
		return Config{}, fmt.Errorf("MQTT_TOPICS must name at least one topic")
	}
	if cfg.CommandTopic == "" {
		return Config{}, fmt.Errorf("MQTT_TOPIC_CMD must not be empty")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT %q (want json or console)", cfg.LogFormat)
	}

	return cfg, nil
}

func parsePort(key, value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	return port, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
