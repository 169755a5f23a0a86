package cli

import (
	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/internal/tui"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of every local and remote-confirmed mutation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			return tui.Run(app.Engine)
		},
	}
}
