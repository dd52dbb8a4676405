package main

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsgen/naginator/internal/daemon"
	"github.com/opsgen/naginator/internal/run"
	"github.com/opsgen/naginator/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run naginator periodically with a metrics endpoint",
		Long: `Serve runs update on the configured cron schedule, optionally
reloading when the configuration file changes, and exposes Prometheus
metrics over HTTP. It stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger()
			metrics := telemetry.NewMetrics()

			dir, err := filepath.Abs(outputDir)
			if err != nil {
				return err
			}

			runner, err := run.NewFromConfig(cfg, log, metrics)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d := daemon.New(configPath, dir, cfg.Daemon, runner, log, metrics)
			if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "The live nagios object directory")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}
