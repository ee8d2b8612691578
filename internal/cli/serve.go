package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"breakcal/internal/config"
	"breakcal/internal/ics"
	"breakcal/internal/importer"
	appLog "breakcal/internal/log"
	"breakcal/internal/metrics"
	"breakcal/internal/refresh"
	"breakcal/internal/web"
)

func newServeCmd(opts *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and refresh subscriptions on schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	appLog.Info("breakcal starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"store_path", cfg.StorePath,
		"refresh", cfg.RefreshCron,
		"ics_count", len(cfg.Subscriptions),
		"metrics", cfg.Metrics,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if n, err := s.Count(ctx); err == nil {
		appLog.Info("store opened", "path", cfg.StorePath, "events", n)
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	loc := cfg.Location()
	imp := importer.New(s, loc, m)
	fetcher := ics.NewFetcher(cfg.CacheDir, &http.Client{Timeout: 30 * time.Second})

	sched := refresh.New(fetcher, imp, cfg.IcsSubscriptions(), cfg.RefreshCron, loc)
	refreshDone, err := sched.Start(ctx)
	if err != nil {
		return err
	}

	srv := web.NewServer(cfg, s, imp, m)
	err = srv.Run(ctx)
	cancel()
	<-refreshDone

	appLog.Info("breakcal exiting")
	return err
}
