package main

import (
	"strings"

	"github.com/danmuck/netspeed/internal/config"
	"github.com/danmuck/netspeed/internal/server"
	"github.com/spf13/cobra"
)

type serverOptions struct {
	configPath string
	addr       string
	maxThreads uint32
	adminAddr  string
}

func newServerCmd(opts *serverOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run a netspeed server",
		Long: `Accept netspeed clients and serve downstream and upstream tests.

Connections beyond --max-threads are declined with the server capacity.
SIGINT or SIGTERM stops accepting; running sessions are allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServerConfig(cmd, opts)
			if err != nil {
				return err
			}
			return server.NewServiceWithConfig(cfg).Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.addr, "addr", "a", server.DefaultListenAddr, "Listen address")
	f.Uint32Var(&opts.maxThreads, "max-threads", server.DefaultMaxThreads, "Maximum concurrent sessions")
	f.StringVar(&opts.adminAddr, "admin-addr", "", "Admin HTTP listen address (empty disables)")
	f.StringVar(&opts.configPath, "config", "", "Server config file (TOML)")
	return cmd
}

func resolveServerConfig(cmd *cobra.Command, opts *serverOptions) (server.ServiceConfig, error) {
	cfg := server.DefaultServiceConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return server.ServiceConfig{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.ListenAddr = strings.TrimSpace(opts.addr)
	}
	if flags.Changed("max-threads") {
		cfg.MaxThreads = opts.maxThreads
	}
	if flags.Changed("admin-addr") {
		cfg.AdminListenAddr = strings.TrimSpace(opts.adminAddr)
	}

	if err := config.ValidateServerConfig(cfg); err != nil {
		return server.ServiceConfig{}, err
	}
	return cfg, nil
}
