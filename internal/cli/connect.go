package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Re-fetch the remote snapshot and replay the queued mutation backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			if err := app.Replicator.Connect(cmd.Context(), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected: %d local records, %d queued mutations\n",
				len(app.Engine.Records()), len(app.Engine.Queued()))
			return nil
		},
	}
}
