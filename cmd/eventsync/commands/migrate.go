package commands

import (
	"fmt"
	"io"

	"github.com/rx3lixir/event-sync/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply secondary schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := db.CreatePostgresPool(cmd.Context(), cfg.Secondary.URL, cfg.PoolConfig())
			if err != nil {
				return fmt.Errorf("failed to connect to secondary: %w", err)
			}
			defer pool.Close()

			version, err := db.Migrate(pool)
			if err != nil {
				return err
			}

			log.Info("Migrations applied", "version", version)
			return render(cmd.OutOrStdout(), map[string]uint{"version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "schema version: %d\n", version)
			})
		},
	}

	return cmd
}
