package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sitelog/internal/config"
	"github.com/spf13/cobra"
)

var (
	envFile     string
	contentRoot string
	dbPath      string
	verbose     bool

	cfg config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "sitelog",
	Short: "sitelog - file-backed blog server",
	Long: `sitelog serves a blog whose content lives in a directory tree of
categories and posts, indexed in SQLite for listing and search.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		cfg = config.Load()
		if contentRoot != "" {
			cfg.ContentRoot = contentRoot
		}
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file merged into the environment when present")
	rootCmd.PersistentFlags().StringVar(&contentRoot, "content-root", "", "content directory (env CONTENT_ROOT)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite index path (env DATABASE_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}
