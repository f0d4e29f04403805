package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rx3lixir/event-sync/internal/db"
	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/spf13/cobra"
)

func newSyncLogCommand() *cobra.Command {
	var (
		entityType string
		entityID   string
		status     string
		operation  string
		since      time.Duration
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "synclog",
		Short: "List sync_log entries",
		Example: `  # Latest failures for events
  eventsync synclog --type events --status FAILED

  # Full history of one record for the last day
  eventsync synclog --id 8f14e45f --since 24h --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := db.CreatePostgresPool(ctx, cfg.Secondary.URL, cfg.PoolConfig())
			if err != nil {
				return fmt.Errorf("failed to connect to secondary: %w", err)
			}
			defer pool.Close()

			opts := []db.SyncLogOption{db.WithPagination(limit, offset)}
			if entityType != "" {
				opts = append(opts, db.WithEntityType(entityType))
			}
			if entityID != "" {
				opts = append(opts, db.WithEntityID(entityID))
			}
			if status != "" {
				opts = append(opts, db.WithStatus(dualwrite.SyncStatus(strings.ToUpper(status))))
			}
			if operation != "" {
				opts = append(opts, db.WithOperation(dualwrite.Operation(strings.ToUpper(operation))))
			}
			if since > 0 {
				from := time.Now().UTC().Add(-since)
				opts = append(opts, db.WithTimeRange(&from, nil))
			}

			entries, err := db.NewSyncLogStore(pool).List(ctx, db.NewSyncLogFilter(opts...))
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), entries, func(w io.Writer) {
				for _, e := range entries {
					msg := ""
					if e.ErrorMessage != nil {
						msg = *e.ErrorMessage
					}
					fmt.Fprintf(w, "%s  %-10s %-24s %-8s %-6s retries=%d %s\n",
						e.CreatedAt.Format(time.RFC3339), e.EntityType, e.EntityID,
						e.Operation, e.Status, e.RetryCount, msg)
				}
			})
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "filter by entity type")
	cmd.Flags().StringVar(&entityID, "id", "", "filter by entity id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING, SYNCED, FAILED)")
	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation (INSERT, UPDATE, DELETE, BACKFILL)")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this duration")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of entries to skip")

	return cmd
}
