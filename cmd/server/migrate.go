package main

import (
	"fmt"

	"github.com/sitelog/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending index schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := db.Migrate(cmd.Context(), a.gdb)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "schema is up to date")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied %s\n", name)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.index.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "current version: %d\n", state.CurrentVersion)
		for _, m := range state.Migrations {
			mark := "pending"
			if m.Applied {
				mark = "applied " + m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "  %03d %-24s %s\n", m.Version, m.Name, mark)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
}
