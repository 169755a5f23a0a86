package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/query"
)

func newRemoveCmd() *cobra.Command {
	var matchJSON string

	cmd := &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove one record, or every record matching --match when id is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())

			var id any
			if len(args) == 1 {
				id = parseID(args[0])
			}

			match := map[string]any{}
			if matchJSON != "" {
				if err := json.Unmarshal([]byte(matchJSON), &match); err != nil {
					return err
				}
			}

			removed, err := app.Mutator.Remove(cmd.Context(), id, query.Params{Query: match})
			if err != nil {
				return err
			}
			return printResult(cmd, removed)
		},
	}

	cmd.Flags().StringVar(&matchJSON, "match", "", "JSON match document selecting records when id is omitted")
	return cmd
}
