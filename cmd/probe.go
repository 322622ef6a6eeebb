package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/camview/internal/logging"
	"github.com/smazurov/camview/internal/probe"
	"github.com/spf13/cobra"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var timeout time.Duration
	var verbose bool

	cmd := &cobra.Command{
		Use:   "probe [address]",
		Short: "Check whether a camera answers RTSP",
		Long: `Connects to the camera address, sends an RTSP OPTIONS request and reports whether anything answered. ` +
			`The address may omit the rtsp:// scheme and the port.`,
		Args: cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.Initialize(logging.Config{Level: level, Format: "text"})

			prober := probe.New(probe.WithTimeout(timeout))
			outcome := prober.Probe(context.Background(), args[0])

			fmt.Fprintln(c.OutOrStdout(), outcome)
			if !outcome.Success() {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", probe.DefaultTimeout, "Connect and handshake timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log the handshake")

	return cmd
}
