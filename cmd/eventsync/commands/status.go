package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compare record counts between the stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			defer log.Sync()

			statuses, err := a.SyncStatus(ctx)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), statuses, func(w io.Writer) {
				fmt.Fprintf(w, "%-12s %10s %10s %8s\n", "TYPE", "PRIMARY", "SECONDARY", "IN SYNC")
				for _, s := range statuses {
					fmt.Fprintf(w, "%-12s %10d %10d %8t\n", s.EntityType, s.PrimaryCount, s.SecondaryCount, s.InSync)
				}
			})
		},
	}

	return cmd
}
