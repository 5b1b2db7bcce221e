package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the SQLite index from the content directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.engine.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "run %s finished in %s\n", report.RunID, report.Duration)
		fmt.Fprintf(out, "  categories: %d\n  posts: %d\n  failed: %d\n  pruned: %d\n",
			report.Categories, report.Posts, report.Failed, report.Pruned)
		if report.Bootstrapped {
			fmt.Fprintln(out, "  content tree was empty, default category created")
		}
		return nil
	},
}
