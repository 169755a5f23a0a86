package cli

import (
	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/query"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <uuid>",
		Short: "Get a single record by uuid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			rec, err := app.Mutator.Get(args[0], query.Params{})
			if err != nil {
				return err
			}
			return printResult(cmd, rec)
		},
	}
}
