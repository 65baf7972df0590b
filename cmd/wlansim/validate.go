// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbmk-project/wlansim/config"
)

func newValidateCommand() *cobra.Command {
	var (
		configFile string
		printYAML  bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario file",
		Long: `Validate a scenario file without running it.

Examples:
  wlansim validate -c scenario.yaml
  wlansim validate -c scenario.yaml --print`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if printYAML {
				data, err := cfg.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VALID: %d node(s), %d segment(s), %d cell(s), %d mobile(s)\n",
				len(cfg.Nodes), len(cfg.Segments), len(cfg.Cells), len(cfg.Mobiles()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "scenario file (required)")
	cmd.Flags().BoolVar(&printYAML, "print", false, "print the effective scenario as YAML")
	cmd.MarkFlagRequired("config")
	return cmd
}
