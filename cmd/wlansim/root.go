// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "wlansim",
		Short: "Simulate wired and wireless local area networks",
		Long: `wlansim simulates mobile stations exchanging messages through access
points bridging wireless cells and wired segments.

The scenario is a YAML file under the "wlansim" root key. Environment
variables with the WLANSIM_ prefix override the file values, for example
WLANSIM_SEED=7 or WLANSIM_LOG_LEVEL=debug.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	return root
}
