// Package main is the entry point for the naginator CLI tool.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsgen/naginator/internal/config"
	"github.com/opsgen/naginator/internal/telemetry"
)

var version = "0.1.0"

// Global flags.
var (
	configPath string
	verbose    int
	logJSON    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "naginator",
		Short: "Compile PuppetDB-exported nagios resources and deploy them",
		Long: `Naginator compiles nodes, facts and exported nagios resources from
PuppetDB into a directory of nagios object configuration files, and
deploys that directory transactionally: diff against the live tree,
validate with the nagios binary, apply only if valid, and roll back
on failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	root.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeat for debug)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// newLogger builds the process logger from the global flags.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose == 1:
		level = slog.LevelInfo
	case verbose >= 2:
		level = slog.LevelDebug
	}
	return telemetry.NewLogger(os.Stderr, level, logJSON)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
