package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
)

func newPatchCmd() *cobra.Command {
	var dataJSON, matchJSON string

	cmd := &cobra.Command{
		Use:   "patch [id]",
		Short: "Merge fields into one record, or every record matching --match when id is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())

			var data record.Record
			if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
				return err
			}

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

			patched, err := app.Mutator.Patch(cmd.Context(), id, data, query.Params{Query: match})
			if err != nil {
				return err
			}
			return printResult(cmd, patched)
		},
	}

	cmd.Flags().StringVar(&dataJSON, "data", "", "JSON partial record body")
	cmd.Flags().StringVar(&matchJSON, "match", "", "JSON match document selecting records when id is omitted")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
