package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/bus"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/config"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/logging"
	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/logsink"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	Topic string
	Dir   string
}

// NewLogsCommand creates the logs command, the receiving end of LOG_TOPIC.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Collect log lines that services forward over MQTT",
		Long: `Subscribe to forwarded log lines (see LOG_TOPIC) and print them, or append
them to <dir>/<service>.log when --dir is given. Broker settings come from
the same MQTT_* environment variables as the service.`,
		Example: `  ambient-match logs
  ambient-match logs --dir /var/log/ambient --topic 'logs/#'`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return collectLogs(ctx, cfg, opts.Topic, opts.Dir, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.Topic, "topic", "logs/#", "topic filter to collect")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "write <service>.log files here instead of stdout")

	return cmd
}

// collectLogs blocks until ctx is done, re-subscribing after every reconnect.
func collectLogs(ctx context.Context, cfg config.Config, topic, dir string, out, errOut io.Writer) error {
	logger := logging.New(errOut, logging.Options{Level: cfg.LogLevel, Format: "console"})

	collector, err := logsink.New(dir, out, logger)
	if err != nil {
		return err
	}

	conn := bus.New(bus.Options{
		Broker:   cfg.Broker(),
		ClientID: cfg.MQTTClientID + "-logs",
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, logger)
	conn.OnConnect(func(c mqtt.Client) {
		token := c.Subscribe(topic, 0, collector.HandleMessage)
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			logger.Info("collecting logs", "topic", topic, "dir", dir)
			return
		}
		logger.Error("subscribe failed", "topic", topic, "error", token.Error())
	})

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("cannot reach MQTT broker %s: %w", cfg.Broker(), err)
	}
	defer conn.Disconnect(disconnectQuiesce)

	<-ctx.Done()
	return nil
}
