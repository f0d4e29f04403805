package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rx3lixir/event-sync/internal/app"
	"github.com/rx3lixir/event-sync/internal/config"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute запускает корневую команду
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "eventsync",
		Short: "eventsync - dual-write synchronizer for the event store",
		Long: `eventsync keeps a relational copy of the event document store.

Writes go to the primary document store (SurrealDB or OpenSearch) and are
replicated to PostgreSQL through a circuit breaker with retries. Every
replication attempt is recorded in the sync_log table.

Commands cover serving health and metrics, schema migrations, historical
backfill, replay of failed syncs and per-record consistency checks.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("EVENTSYNC_CONFIG"), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newBackfillCommand())
	rootCmd.AddCommand(newReplayCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newSyncLogCommand())

	return rootCmd
}

// loadConfig читает конфигурацию и строит логгер по ней
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openApp подключается к хранилищам; вызывающий закрывает App
func openApp(ctx context.Context) (*app.App, logger.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", "error", err)
		return nil, nil, err
	}
	return a, log, nil
}

// render печатает v как JSON при --json, иначе вызывает text
func render(w io.Writer, v any, text func(w io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
