// Package run ties the engine together: one Runner builds an inventory
// snapshot, compiles it into a fresh tree, and deploys that tree
// transactionally.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opsgen/naginator/internal/config"
	"github.com/opsgen/naginator/internal/deploy"
	"github.com/opsgen/naginator/internal/generate"
	"github.com/opsgen/naginator/internal/nagios"
	"github.com/opsgen/naginator/internal/puppetdb"
	"github.com/opsgen/naginator/internal/telemetry"
)

// Runner executes compilation and deployment runs.
type Runner struct {
	cfg       *config.Config
	src       generate.Source
	verifier  nagios.Verifier
	restarter nagios.Restarter
	log       *slog.Logger
	metrics   *telemetry.Metrics
}

// New wires a Runner from explicit collaborators.
func New(cfg *config.Config, src generate.Source, verifier nagios.Verifier, restarter nagios.Restarter, log *slog.Logger, metrics *telemetry.Metrics) *Runner {
	return &Runner{
		cfg:       cfg,
		src:       src,
		verifier:  verifier,
		restarter: restarter,
		log:       log,
		metrics:   metrics,
	}
}

// NewFromConfig builds the PuppetDB client and nagios wrapper from cfg.
func NewFromConfig(cfg *config.Config, log *slog.Logger, metrics *telemetry.Metrics) (*Runner, error) {
	client, err := puppetdb.NewClient(puppetdb.Config{
		Host:    cfg.PuppetDB.Host,
		Port:    cfg.PuppetDB.Port,
		Timeout: time.Duration(cfg.PuppetDB.Timeout),
		CACert:  cfg.PuppetDB.CACert,
		Cert:    cfg.PuppetDB.Cert,
		Key:     cfg.PuppetDB.Key,
	})
	if err != nil {
		return nil, err
	}
	ng := nagios.New(nagios.Config{
		Binary:          cfg.Nagios.Binary,
		MainConfig:      cfg.Nagios.MainConfig,
		CommandsConfig:  cfg.Nagios.CommandsConfig,
		PluginConfigDir: cfg.Nagios.PluginConfigDir,
		RestartCommand:  cfg.Nagios.RestartCommand,
	}, log)
	return New(cfg, client, ng, ng, log, metrics), nil
}

// Generate compiles the inventory into outDir without deploying.
func (r *Runner) Generate(ctx context.Context, outDir string) error {
	engine := generate.New(r.src, r.engineOptions(), r.log, r.metrics)
	snap, err := engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	return engine.Generate(ctx, snap, outDir)
}

// Update compiles into a temporary directory and deploys the result to
// liveDir, restarting nagios on success when configured.
func (r *Runner) Update(ctx context.Context, liveDir string) (*deploy.Result, error) {
	runID := telemetry.NewRunID()
	log := telemetry.RunLogger(r.log, runID)
	start := time.Now()

	result, err := r.update(ctx, liveDir, log)
	r.observe(result, err, time.Since(start))
	return result, err
}

func (r *Runner) update(ctx context.Context, liveDir string, log *slog.Logger) (*deploy.Result, error) {
	stagingDir, err := os.MkdirTemp("", "naginator-staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	engine := generate.New(r.src, r.engineOptions(), log, r.metrics)
	snap, err := engine.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := engine.Generate(ctx, snap, stagingDir); err != nil {
		return nil, err
	}

	deployer := deploy.New(r.verifier, r.restarter, log, r.metrics)
	return deployer.Deploy(ctx, stagingDir, deploy.Options{
		LiveDir:         liveDir,
		ExtraConfigDirs: r.cfg.Nagios.ExtraConfigDirs,
		PostVerify:      r.cfg.Deploy.Safety == config.SafetyPostApply,
		Restart:         r.cfg.Deploy.Restart,
	})
}

func (r *Runner) engineOptions() generate.Options {
	groups := make([]generate.GroupDef, len(r.cfg.HostGroups))
	for i, hg := range r.cfg.HostGroups {
		traits := make([]generate.Trait, len(hg.Traits))
		for j, t := range hg.Traits {
			traits[j] = generate.Trait{Type: t.Type, Title: t.Title}
		}
		groups[i] = generate.GroupDef{
			Name:          hg.Name,
			NameTemplate:  hg.NameTemplate,
			AliasTemplate: hg.AliasTemplate,
			When:          hg.When,
			Traits:        traits,
		}
	}
	return generate.Options{
		Environment:  r.cfg.PuppetDB.Environment,
		Query:        r.cfg.Query,
		ExcludeTypes: r.cfg.ExcludeTypes,
		HostGroups:   groups,
	}
}

func (r *Runner) observe(result *deploy.Result, err error, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RunDuration.Observe(elapsed.Seconds())
	switch {
	case err != nil:
		r.metrics.RunsTotal.WithLabelValues("error").Inc()
	case result != nil && result.State == deploy.StateUnchanged:
		r.metrics.RunsTotal.WithLabelValues("unchanged").Inc()
		r.metrics.LastSuccessTime.SetToCurrentTime()
	default:
		r.metrics.RunsTotal.WithLabelValues("success").Inc()
		r.metrics.LastSuccessTime.SetToCurrentTime()
	}
}
