// Package cli holds the cobra commands of the ambient-match binary.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL string // base URL used by the client subcommands
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	serve := NewServeCommand(opts)

	cmd := &cobra.Command{
		Use:   "ambient-match",
		Short: "Ambient light and colour telemetry service",
		Long: `ambient-match ingests lux, colour and LED telemetry from MQTT, stores it,
and serves it over HTTP together with an LED command endpoint.

Run without a subcommand to start the service.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", defaultAPIURL(), "base URL of a running service (env AMBIENT_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewLatestCommand(opts))
	cmd.AddCommand(NewLEDCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))

	return cmd
}

func defaultAPIURL() string {
	if v, ok := os.LookupEnv("AMBIENT_API_URL"); ok && v != "" {
		return v
	}
	return "http://localhost:5000"
}
