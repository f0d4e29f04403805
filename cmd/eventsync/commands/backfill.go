package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newBackfillCommand() *cobra.Command {
	var (
		entityType string
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Copy historical records from the primary store to PostgreSQL",
		Long: `Stream every record of the primary store into the secondary store.

Records that already exist in the secondary store are skipped, so the
command can be re-run safely. Each row is audited in sync_log with the
BACKFILL operation.`,
		Example: `  # Backfill all entity types
  eventsync backfill

  # Backfill events only in batches of 500
  eventsync backfill --type events --batch-size 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			defer log.Sync()

			summary, runErr := a.Backfill(ctx, entityType, batchSize)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(summary.Results) == 1 {
				err = enc.Encode(summary.Results[0])
			} else {
				err = enc.Encode(summary)
			}
			if err != nil {
				return err
			}

			if runErr != nil {
				return runErr
			}
			if !summary.IsSuccess {
				return fmt.Errorf("backfill finished with %d failed rows", summary.FailureCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "entity type to backfill (events, categories); empty means all")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per batch; 0 uses sync.backfill.batch_size")

	return cmd
}
