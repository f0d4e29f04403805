package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newServeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run health, gRPC health and metrics servers",
		Long: `Connect to both stores, apply migrations when secondary.auto_migrate is set
and serve until SIGINT or SIGTERM.

Endpoints:
  - HTTP /health, /live, /info on health.addr
  - grpc.health.v1.Health on health.grpc_addr
  - Prometheus /metrics on metrics.addr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.Close(closeCtx)
				log.Sync()
			}()

			log.Info("Starting eventsync",
				"version", version,
				"mode", a.Config().SyncMode(),
				"primary_driver", a.Config().Primary.Driver,
			)

			return a.Serve(ctx)
		},
	}

	return cmd
}
