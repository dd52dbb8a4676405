// Package daemon runs naginator periodically: cron-scheduled update
// runs, optional config-file watching, and a metrics endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/opsgen/naginator/internal/config"
	"github.com/opsgen/naginator/internal/run"
	"github.com/opsgen/naginator/internal/telemetry"
)

// Daemon schedules update runs against one live directory.
type Daemon struct {
	configPath string
	liveDir    string
	settings   config.Daemon
	log        *slog.Logger
	metrics    *telemetry.Metrics

	mu      sync.Mutex
	runner  *run.Runner
	running atomic.Bool
}

// New creates a Daemon around an initial runner. configPath is watched
// for changes when watch_config is enabled.
func New(configPath, liveDir string, settings config.Daemon, runner *run.Runner, log *slog.Logger, metrics *telemetry.Metrics) *Daemon {
	return &Daemon{
		configPath: configPath,
		liveDir:    liveDir,
		settings:   settings,
		log:        log,
		metrics:    metrics,
		runner:     runner,
	}
}

// Run blocks until ctx is cancelled. It performs one immediate run,
// then follows the cron schedule.
func (d *Daemon) Run(ctx context.Context) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(d.settings.Schedule, func() { d.trigger(ctx) }); err != nil {
		return fmt.Errorf("parse schedule %q: %w", d.settings.Schedule, err)
	}

	var watcher *fsnotify.Watcher
	if d.settings.WatchConfig && d.configPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(d.configPath); err != nil {
			return fmt.Errorf("watch %s: %w", d.configPath, err)
		}
		go d.watchConfig(ctx, watcher)
	}

	server := d.metricsServer()
	if server != nil {
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	d.log.Info("daemon started",
		slog.String("schedule", d.settings.Schedule),
		slog.String("listen", d.settings.Listen))
	d.trigger(ctx)
	scheduler.Start()

	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	d.log.Info("daemon stopped")
	return ctx.Err()
}

// trigger performs one update run, skipping if one is in progress.
func (d *Daemon) trigger(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn("skipping run, previous run still in progress")
		if d.metrics != nil {
			d.metrics.RunsSkippedBusy.Inc()
		}
		return
	}
	defer d.running.Store(false)

	d.mu.Lock()
	runner := d.runner
	d.mu.Unlock()

	result, err := runner.Update(ctx, d.liveDir)
	if err != nil {
		d.log.Error("update run failed", slog.String("error", err.Error()))
		return
	}
	d.log.Info("update run finished", slog.String("state", string(result.State)))
}

// watchConfig reloads the configuration and swaps the runner when the
// config file changes. A broken new config keeps the old runner.
func (d *Daemon) watchConfig(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			d.log.Info("config file changed, reloading", slog.String("path", d.configPath))
			cfg, err := config.Load(d.configPath)
			if err != nil {
				d.log.Error("config reload failed", slog.String("error", err.Error()))
				continue
			}
			runner, err := run.NewFromConfig(cfg, d.log, d.metrics)
			if err != nil {
				d.log.Error("config reload failed", slog.String("error", err.Error()))
				continue
			}
			d.mu.Lock()
			d.runner = runner
			d.mu.Unlock()
			d.trigger(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.log.Error("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func (d *Daemon) metricsServer() *http.Server {
	if d.settings.Listen == "" || d.metrics == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{Addr: d.settings.Listen, Handler: mux}
}
