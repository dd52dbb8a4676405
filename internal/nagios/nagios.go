// Package nagios wraps the external nagios binary: configuration
// verification and service restart.
package nagios

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Verifier validates sets of nagios object configuration directories.
type Verifier interface {
	// VerifyStaged validates candidate config directories using a
	// synthesized main configuration.
	VerifyStaged(ctx context.Context, cfgDirs []string) error

	// VerifyLive validates the production main configuration in place.
	VerifyLive(ctx context.Context) error
}

// Restarter restarts the monitoring service after a successful deploy.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Config locates the nagios installation.
type Config struct {
	Binary          string
	MainConfig      string
	CommandsConfig  string
	PluginConfigDir string
	RestartCommand  []string
}

// Nagios implements Verifier and Restarter by exec'ing the nagios
// binary and the configured restart command.
type Nagios struct {
	cfg Config
	log *slog.Logger
}

// New creates a Nagios wrapper.
func New(cfg Config, log *slog.Logger) *Nagios {
	return &Nagios{cfg: cfg, log: log}
}

// VerifyError carries the validator's diagnostic output.
type VerifyError struct {
	Output string
	Err    error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("nagios validation failed: %v\n%s", e.Err, e.Output)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// VerifyStaged builds a temporary main config referencing the builtin
// commands file, the plugin config dir, a scratch check-result dir and
// every candidate directory, then runs `nagios -v` against it.
func (n *Nagios) VerifyStaged(ctx context.Context, cfgDirs []string) error {
	n.log.Info("validating nagios config", slog.String("dirs", strings.Join(cfgDirs, ", ")))

	scratch, err := os.MkdirTemp("", "naginator-checkresult-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	cfgFile, err := writeMainConfig(n.cfg, scratch, cfgDirs)
	if err != nil {
		return err
	}
	defer os.Remove(cfgFile)

	return n.verify(ctx, cfgFile)
}

// VerifyLive runs `nagios -v` against the production main config.
func (n *Nagios) VerifyLive(ctx context.Context) error {
	n.log.Info("validating live nagios config", slog.String("config", n.cfg.MainConfig))
	return n.verify(ctx, n.cfg.MainConfig)
}

func (n *Nagios) verify(ctx context.Context, cfgFile string) error {
	cmd := exec.CommandContext(ctx, n.cfg.Binary, "-v", cfgFile)
	output, err := cmd.CombinedOutput()
	for _, line := range strings.Split(string(output), "\n") {
		n.log.Debug(line)
	}
	if err != nil {
		return &VerifyError{Output: string(output), Err: err}
	}
	return nil
}

// Restart invokes the configured restart command.
func (n *Nagios) Restart(ctx context.Context) error {
	if len(n.cfg.RestartCommand) == 0 {
		return fmt.Errorf("no restart command configured")
	}
	n.log.Info("restarting nagios", slog.String("command", strings.Join(n.cfg.RestartCommand, " ")))

	cmd := exec.CommandContext(ctx, n.cfg.RestartCommand[0], n.cfg.RestartCommand[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("restart failed: %w\n%s", err, output)
	}
	return nil
}

// writeMainConfig renders the temporary main configuration used for
// staged validation and returns its path.
func writeMainConfig(cfg Config, checkResultDir string, cfgDirs []string) (string, error) {
	lines := []string{
		"cfg_file=" + cfg.CommandsConfig,
		"cfg_dir=" + cfg.PluginConfigDir,
		"check_result_path=" + checkResultDir,
	}
	for _, dir := range cfgDirs {
		lines = append(lines, "cfg_dir="+dir)
	}

	f, err := os.CreateTemp("", "naginator-nagios-*.cfg")
	if err != nil {
		return "", fmt.Errorf("create temp config: %w", err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
