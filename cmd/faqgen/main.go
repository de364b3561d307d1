// Command faqgen clusters resolved support tickets into FAQ entries from the
// command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-support/engine/backend"
)

var (
	configPath string
	storeKind  string
	sqlitePath string
	verbose    bool

	settings backend.Settings
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "faqgen",
	Short:         "Generate FAQ entries from resolved support tickets",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		s, err := backend.LoadSettings(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("store") {
			s.Store = storeKind
		}
		if cmd.Flags().Changed("sqlite") {
			s.SQLitePath = sqlitePath
		}
		if err := s.Validate(); err != nil {
			return err
		}
		settings = s
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", os.Getenv("FAQ_CONFIG"), "YAML configuration file")
	pf.StringVar(&storeKind, "store", backend.KindSQLite, "ticket and FAQ store: sqlite or neo4j")
	pf.StringVar(&sqlitePath, "sqlite", "faqgen.db", "SQLite database path")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(importCmd, previewCmd, generateCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
