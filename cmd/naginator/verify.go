package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opsgen/naginator/internal/nagios"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <dir> [dir...]",
		Short: "Validate nagios configuration directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger()

			dirs := make([]string, len(args))
			for i, a := range args {
				if dirs[i], err = filepath.Abs(a); err != nil {
					return err
				}
			}

			ng := nagios.New(nagios.Config{
				Binary:          cfg.Nagios.Binary,
				MainConfig:      cfg.Nagios.MainConfig,
				CommandsConfig:  cfg.Nagios.CommandsConfig,
				PluginConfigDir: cfg.Nagios.PluginConfigDir,
			}, log)
			if err := ng.VerifyStaged(cmd.Context(), append(dirs, cfg.Nagios.ExtraConfigDirs...)); err != nil {
				return err
			}
			fmt.Println("Configuration valid.")
			return nil
		},
	}
	return cmd
}
