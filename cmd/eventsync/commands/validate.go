package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var (
		entityType string
		id         string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare one record in the primary and secondary stores",
		Long: `Read the record from both stores and compare their canonical JSON forms.
A mismatch is reported in the output and is not an error.`,
		Example: `  eventsync validate --type events --id 8f14e45f`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			defer log.Sync()

			result, err := a.Validate(ctx, entityType, id)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "entity type (events, categories)")
	cmd.Flags().StringVar(&id, "id", "", "record id")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("id")

	return cmd
}
