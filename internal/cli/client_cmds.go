package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/client"
)

// NewLatestCommand creates the latest command.
func NewLatestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the newest reading of each kind from a running service",
		Example: `  ambient-match latest
  ambient-match latest --api http://raspberrypi:5000 --format json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := client.NewAPIClient(opts.APIURL).Latest(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

// NewLEDCommand creates the led command.
func NewLEDCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "led <r> <g> <b>",
		Short: "Set the device LED colour (components are clamped to 0-255)",
		Example: `  ambient-match led 255 0 128
  ambient-match led -- -10 0 300`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rgb [3]int
			for i, a := range args {
				n, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("component %d: %q is not an integer", i+1, a)
				}
				rgb[i] = n
			}

			published, err := client.NewAPIClient(opts.APIURL).SendLED(cmd.Context(), rgb[0], rgb[1], rgb[2])
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), published)
			}
			led := published.Payload.LED
			fmt.Fprintf(cmd.OutOrStdout(), "published led [%d %d %d] to %s\n", led[0], led[1], led[2], published.Topic)
			return nil
		},
	}
}

func printSnapshot(w io.Writer, s client.Snapshot) {
	if s.Lux != nil {
		fmt.Fprintf(w, "lux    %-10.2f %s\n", s.Lux.Lux, s.Lux.TS.Local().Format(time.DateTime))
	} else {
		fmt.Fprintln(w, "lux    -")
	}
	if s.Color != nil {
		c := s.Color
		fmt.Fprintf(w, "color  %-10s %s rgb=%v hsv=(%.1f, %.2f, %.2f)\n",
			c.Name, c.TS.Local().Format(time.DateTime), c.RGB, c.HSV.H, c.HSV.S, c.HSV.V)
	} else {
		fmt.Fprintln(w, "color  -")
	}
	if s.LED != nil {
		fmt.Fprintf(w, "led    %-10v %s\n", s.LED.RGB, s.LED.TS.Local().Format(time.DateTime))
	} else {
		fmt.Fprintln(w, "led    -")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
