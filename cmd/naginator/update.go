package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsgen/naginator/internal/deploy"
	"github.com/opsgen/naginator/internal/run"
	"github.com/opsgen/naginator/internal/telemetry"
)

func newUpdateCmd() *cobra.Command {
	var (
		outputDir string
		noRestart bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Compile and deploy the nagios configuration",
		Long: `Update compiles a fresh configuration tree, diffs it against the
live directory, validates the changes with the nagios binary, and
applies them. If post-apply validation fails the live directory is
restored from a snapshot taken before the apply.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noRestart {
				cfg.Deploy.Restart = false
			}
			log := newLogger()

			dir, err := filepath.Abs(outputDir)
			if err != nil {
				return err
			}

			runner, err := run.NewFromConfig(cfg, log, telemetry.NewMetrics())
			if err != nil {
				return err
			}
			result, err := runner.Update(cmd.Context(), dir)
			if err != nil {
				var restartErr *deploy.RestartError
				if errors.As(err, &restartErr) {
					fmt.Println("Configuration applied; nagios restart failed.")
				}
				return err
			}

			switch result.State {
			case deploy.StateUnchanged:
				fmt.Println("No changes.")
			default:
				fmt.Printf("Applied %d changed, %d added, removed %d file(s).\n",
					len(result.Diff.Changed), len(result.Diff.Added), len(result.Diff.Removed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "The live nagios object directory")
	cmd.Flags().BoolVar(&noRestart, "no-restart", false, "Skip the nagios restart after a successful apply")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}
