package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/netspeed/internal/client"
	"github.com/danmuck/netspeed/internal/config"
	"github.com/danmuck/netspeed/internal/logging"
	"github.com/danmuck/netspeed/internal/measure"
	"github.com/spf13/cobra"
)

type clientOptions struct {
	configPath      string
	addr            string
	duration        int
	pings           int
	connectTimeout  time.Duration
	connectAttempts int
	verbose         int
}

func newRootCmd() *cobra.Command {
	return newClientCmd(&clientOptions{})
}

// newClientCmd builds the root command, binding its flags to opts.
func newClientCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netspeed",
		Short: "Measure TCP throughput against a netspeed server",
		Long: `Connect to a netspeed server, run a downstream test and then an upstream
test of the configured duration, and report the throughput of each direction.

Start a server with "netspeed server".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureVerbosity(opts.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveClientConfig(cmd, opts)
			if err != nil {
				return err
			}
			report, err := client.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.PersistentFlags().CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (-v debug, -vv trace)")

	f := cmd.Flags()
	f.StringVarP(&opts.addr, "addr", "a", client.DefaultAddress, "Server address")
	f.IntVarP(&opts.duration, "duration", "d", int(client.DefaultDuration.Seconds()), "Seconds per direction (max 10)")
	f.IntVar(&opts.pings, "pings", 0, "Extra ping rounds before the tests")
	f.DurationVar(&opts.connectTimeout, "connect-timeout", 3*time.Second, "Connect timeout")
	f.IntVar(&opts.connectAttempts, "connect-attempts", 1, "Connect attempts before giving up")
	f.StringVar(&opts.configPath, "config", "", "Client config file (TOML)")

	cmd.AddCommand(newServerCmd(&serverOptions{}), newConfigCmd())
	return cmd
}

// resolveClientConfig layers defaults, the optional config file and any flag
// set on the command line, in that order.
func resolveClientConfig(cmd *cobra.Command, opts *clientOptions) (client.DriverConfig, error) {
	cfg := client.DefaultDriverConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return client.DriverConfig{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Address = strings.TrimSpace(opts.addr)
	}
	if flags.Changed("duration") {
		cfg.Duration = time.Duration(opts.duration) * time.Second
	}
	if flags.Changed("pings") {
		cfg.ExtraPings = opts.pings
	}
	if flags.Changed("connect-timeout") {
		cfg.Session.ConnectTimeout = opts.connectTimeout
	}
	if flags.Changed("connect-attempts") {
		cfg.Session.ConnectAttempts = opts.connectAttempts
	}

	if err := config.ValidateClientConfig(cfg); err != nil {
		return client.DriverConfig{}, err
	}
	return cfg, nil
}

func printReport(w io.Writer, report client.Report) {
	fmt.Fprintf(w, "server:     %s\n", report.Address)
	fmt.Fprintf(w, "downstream: %s (%s)\n", measure.FormatBps(report.Downstream.BitsPerSecond()), transferred(report.Downstream))
	fmt.Fprintf(w, "upstream:   %s (%s)\n", measure.FormatBps(report.Upstream.BitsPerSecond()), transferred(report.Upstream))
	fmt.Fprintf(w, "total:      %s\n", report.Elapsed.Round(time.Millisecond))
}

func transferred(t measure.Throughput) string {
	return fmt.Sprintf("%s in %s", measure.FormatBytes(t.Bytes), t.Elapsed.Round(time.Millisecond))
}
