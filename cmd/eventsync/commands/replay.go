package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newReplayCommand() *cobra.Command {
	var (
		entityType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-sync entities whose latest sync attempt failed",
		Long: `Find entities whose most recent sync_log entry is FAILED and bring the
secondary store in line with the current primary state: insert or update
when the record exists, delete when it is gone.`,
		Example: `  eventsync replay --type events --limit 500`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			defer log.Sync()

			result, err := a.Replay(ctx, entityType, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}

			if result.Failed > 0 {
				return fmt.Errorf("replay left %d entities failed", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "entity type to replay (events, categories)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entities to replay")
	cmd.MarkFlagRequired("type")

	return cmd
}
