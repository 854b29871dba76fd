package main

import (
	"github.com/spf13/cobra"

	"finfix/internal/cli"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "finfixctl",
		Short:        "Operate finfix: migrations and onboarding diagnostics",
		SilenceUsage: true,
	}
	root.PersistentPreRun = func(*cobra.Command, []string) {
		cli.LoadEnvFile()
	}
	root.AddCommand(newResolveCmd(), newStepsCmd(), newCheckDateCmd(), newMigrateCmd())
	return root
}
