package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"finfix/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: $SQLITE_DB_PATH or ./data/finfix.db)")

	path := func() string {
		switch {
		case dbPath != "":
			return dbPath
		case os.Getenv("SQLITE_DB_PATH") != "":
			return os.Getenv("SQLITE_DB_PATH")
		}
		return "./data/finfix.db"
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := storage.RunMigrations(path()); err != nil {
					return err
				}
				return printVersion(cmd, path())
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Revert the last migrations (default: 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid steps %q: %w", args[0], err)
					}
					steps = n
				}
				if err := storage.RollbackMigrations(path(), steps); err != nil {
					return err
				}
				return printVersion(cmd, path())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return printVersion(cmd, path())
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, dbPath string) error {
	version, dirty, err := storage.MigrationVersion(dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d", version)
	if dirty {
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
