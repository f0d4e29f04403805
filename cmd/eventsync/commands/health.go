package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe both stores once",
		Long:  `Ping the primary and secondary stores. Exits with code 1 if either is down.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			defer log.Sync()

			primary, secondary := a.BackendHealth(ctx)
			out := map[string]bool{"primary": primary, "secondary": secondary}

			err = render(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "primary:   %s\n", upDown(primary))
				fmt.Fprintf(w, "secondary: %s\n", upDown(secondary))
			})
			if err != nil {
				return err
			}

			if !primary || !secondary {
				return errors.New("backend is unhealthy")
			}
			return nil
		},
	}

	return cmd
}

func upDown(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}
