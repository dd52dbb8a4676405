package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsgen/naginator/internal/run"
	"github.com/opsgen/naginator/internal/telemetry"
)

func newGenerateCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile the nagios configuration into a directory",
		Long: `Generate queries PuppetDB and writes the compiled nagios object
files into the output directory without validating or deploying them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger()

			dir, err := filepath.Abs(outputDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			runner, err := run.NewFromConfig(cfg, log, telemetry.NewMetrics())
			if err != nil {
				return err
			}
			if err := runner.Generate(cmd.Context(), dir); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory to write the nagios config into")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}
