package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/query"
)

func newFindCmd() *cobra.Command {
	var matchJSON string
	var limit, skip int

	cmd := &cobra.Command{
		Use:   "find",
		Short: "List local records matching a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())

			match := map[string]any{}
			if matchJSON != "" {
				if err := json.Unmarshal([]byte(matchJSON), &match); err != nil {
					return err
				}
			}

			items, page := app.Mutator.Find(query.Params{Query: match, Limit: limit, Skip: skip})
			if page != nil {
				return printResult(cmd, page)
			}
			return printResult(cmd, items)
		},
	}

	cmd.Flags().StringVar(&matchJSON, "match", "", "JSON match document, e.g. '{\"done\":false}'")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to return")
	cmd.Flags().IntVar(&skip, "skip", 0, "Records to skip")
	return cmd
}
