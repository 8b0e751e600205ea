package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/omochice/toy-state-sync/internal/bot"
	"github.com/omochice/toy-state-sync/internal/config"
	"github.com/omochice/toy-state-sync/internal/logging"
	"github.com/omochice/toy-state-sync/pkg/transport"
	"github.com/omochice/toy-state-sync/pkg/transport/backend"
)

func main() {
	cfg := config.DefaultClient()

	rootCmd := &cobra.Command{
		Use:   "client",
		Short: "Headless client that walks in circles and watches the world",
		Long: `Connects to a relay server over ws://, wss:// or tcp://, reports a
position moving along a circle every frame and logs the size of the
world it receives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cfg.URL, "url", cfg.URL, "server URL (ws://, wss:// or tcp://)")
	flags.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "interval between frames")
	flags.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "connection timeout, 0 to wait indefinitely")
	flags.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "largest world update accepted")
	flags.Float32Var(&cfg.Radius, "radius", cfg.Radius, "radius of the walked circle")
	flags.DurationVar(&cfg.Duration, "duration", cfg.Duration, "leave after this long, 0 to stay until disconnected")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address serving Prometheus metrics at /metrics, empty to disable")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Client) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	b, err := bot.New(cfg, backend.Default(), logger, transport.WithMetrics(transport.NewMetrics(reg, "statesync")))
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer stopMetrics()
	}
	stats, err := b.Run(ctx)
	level.Info(logger).Log(
		"event", "client finished",
		"frames", stats.Frames,
		"sent", stats.Sent,
		"received", stats.Received,
		"rejected", stats.Rejected,
		"max_users", stats.MaxUsers,
	)
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		level.Info(logger).Log("event", "serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("event", "metrics server failed", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
