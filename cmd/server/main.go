package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log/level"
	"github.com/spf13/cobra"

	"github.com/omochice/toy-state-sync/internal/config"
	"github.com/omochice/toy-state-sync/internal/logging"
	"github.com/omochice/toy-state-sync/internal/server"
)

func main() {
	cfg := config.DefaultServer()

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Relay world state between TCP and WebSocket clients",
		Long: `Accepts TCP and WebSocket clients on one port. Each client reports
its own position and orientation; every tick the server sends the
combined world back to all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on for both TCP and WebSocket")
	flags.StringVar(&cfg.Path, "path", cfg.Path, "HTTP path of the WebSocket endpoint")
	flags.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "maximum number of connected clients")
	flags.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "interval between world broadcasts")
	flags.StringSliceVar(&cfg.OriginPatterns, "origin", cfg.OriginPatterns, "extra host patterns browsers may connect from, same-origin is always allowed")
	flags.StringVar(&cfg.MetricsPath, "metrics-path", cfg.MetricsPath, "HTTP path of the Prometheus endpoint, empty to disable")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil {
		return err
	}
	level.Info(logger).Log("event", "shutdown complete")
	return nil
}
