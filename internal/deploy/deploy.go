package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opsgen/naginator/internal/nagios"
	"github.com/opsgen/naginator/internal/telemetry"
)

// State names the phases of one deployment attempt.
type State string

const (
	StateUnchanged        State = "unchanged"
	StateValidated        State = "validated"
	StateValidationFailed State = "validation_failed"
	StateApplied          State = "applied"
	StateRolledBack       State = "rolled_back"
)

// Options configures one deployment.
type Options struct {
	// LiveDir is the deployed nagios object directory.
	LiveDir string

	// ExtraConfigDirs are additional directories the validator must
	// see alongside the candidate tree.
	ExtraConfigDirs []string

	// PostVerify re-validates the live tree after applying and rolls
	// back on failure.
	PostVerify bool

	// Restart invokes the restarter after a successful apply.
	Restart bool
}

// Result reports what one deployment attempt did.
type Result struct {
	State     State
	Diff      *Diff
	Restarted bool
}

// RestartError marks a restart failure after a successful apply. The
// applied configuration is valid and stays in place.
type RestartError struct {
	Err error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("config applied but restart failed: %v", e.Err)
}

func (e *RestartError) Unwrap() error { return e.Err }

// Deployer applies generated trees to the live directory.
type Deployer struct {
	verifier  nagios.Verifier
	restarter nagios.Restarter
	log       *slog.Logger
	metrics   *telemetry.Metrics
}

// New creates a Deployer. metrics may be nil.
func New(verifier nagios.Verifier, restarter nagios.Restarter, log *slog.Logger, metrics *telemetry.Metrics) *Deployer {
	return &Deployer{verifier: verifier, restarter: restarter, log: log, metrics: metrics}
}

// Deploy diffs generatedDir against the live tree, validates, and
// applies atomically: either every changed file lands and validates,
// or the live tree is restored byte-for-byte from the pre-apply
// snapshot. A no-op diff returns without invoking the validator or
// the restarter.
func (d *Deployer) Deploy(ctx context.Context, generatedDir string, opts Options) (*Result, error) {
	diff, err := Compare(generatedDir, opts.LiveDir)
	if err != nil {
		return nil, err
	}
	result := &Result{Diff: diff}

	if diff.Empty() {
		d.log.Info("no configuration changes")
		result.State = StateUnchanged
		return result, nil
	}
	d.log.Info("configuration diff",
		slog.Int("changed", len(diff.Changed)),
		slog.Int("added", len(diff.Added)),
		slog.Int("removed", len(diff.Removed)))

	// Validate the new tree before touching the live one.
	staged := append([]string{generatedDir}, opts.ExtraConfigDirs...)
	if err := d.verifier.VerifyStaged(ctx, staged); err != nil {
		result.State = StateValidationFailed
		return result, err
	}
	result.State = StateValidated

	backupDir, err := os.MkdirTemp("", "naginator-backup-")
	if err != nil {
		return result, fmt.Errorf("create backup dir: %w", err)
	}
	defer os.RemoveAll(backupDir)
	if err := copyTree(opts.LiveDir, backupDir); err != nil {
		return result, fmt.Errorf("snapshot live tree: %w", err)
	}

	if err := d.apply(generatedDir, opts.LiveDir, diff); err != nil {
		// A failed copy leaves a partial tree; restore the snapshot.
		if rbErr := d.rollback(opts.LiveDir, backupDir); rbErr != nil {
			return result, fmt.Errorf("apply failed (%v) and rollback failed: %w", err, rbErr)
		}
		result.State = StateRolledBack
		return result, err
	}
	result.State = StateApplied

	if opts.PostVerify {
		if err := d.verifier.VerifyLive(ctx); err != nil {
			d.log.Error("post-apply validation failed, rolling back")
			if rbErr := d.rollback(opts.LiveDir, backupDir); rbErr != nil {
				return result, fmt.Errorf("rollback failed: %v (original failure: %w)", rbErr, err)
			}
			result.State = StateRolledBack
			return result, err
		}
	}

	if d.metrics != nil {
		d.metrics.DeployFileOps.WithLabelValues("copy").
			Add(float64(len(diff.Changed) + len(diff.Added)))
		d.metrics.DeployFileOps.WithLabelValues("remove").
			Add(float64(len(diff.Removed)))
	}

	if opts.Restart {
		if err := d.restarter.Restart(ctx); err != nil {
			return result, &RestartError{Err: err}
		}
		result.Restarted = true
	}
	return result, nil
}

func (d *Deployer) apply(generatedDir, liveDir string, diff *Diff) error {
	for _, name := range diff.Changed {
		d.log.Info("copying changed file", slog.String("file", name))
		if err := copyFile(filepath.Join(generatedDir, name), filepath.Join(liveDir, name)); err != nil {
			return err
		}
	}
	for _, name := range diff.Added {
		d.log.Info("copying new file", slog.String("file", name))
		if err := copyFile(filepath.Join(generatedDir, name), filepath.Join(liveDir, name)); err != nil {
			return err
		}
	}
	for _, name := range diff.Removed {
		d.log.Info("removing file", slog.String("file", name))
		if err := os.Remove(filepath.Join(liveDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// rollback restores the live tree exactly to the backup snapshot.
func (d *Deployer) rollback(liveDir, backupDir string) error {
	if err := clearTree(liveDir); err != nil {
		return err
	}
	return copyTree(backupDir, liveDir)
}
