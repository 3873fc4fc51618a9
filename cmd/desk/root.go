package main

import (
	"github.com/spf13/cobra"
)

const version = "0.3.0"

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:   "desk",
		Short: "Paper-trading desk over a simulated FX market",
		Long: `Desk runs a simulated FX market and a per-user paper-trading ledger.

Positions are long only. Stakes are debited from the user's balance when a
position opens and stake plus profit or loss is credited back on close.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory containing config.yml")

	serve := newServeCmd(&configDir)
	root.AddCommand(serve, newSimulateCmd(&configDir), newVersionCmd())
	root.RunE = serve.RunE
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("desk version %s\n", version)
		},
	}
}
