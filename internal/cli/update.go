package cli

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/record"
)

func newUpdateCmd() *cobra.Command {
	var dataJSON string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a record; data must carry the target's uuid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())

			var data record.Record
			if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
				return err
			}

			updated, err := app.Mutator.Update(cmd.Context(), parseID(args[0]), data)
			if err != nil {
				return err
			}
			return printResult(cmd, updated)
		},
	}

	cmd.Flags().StringVar(&dataJSON, "data", "", "JSON record body, must include \"uuid\"")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// parseID converts a CLI id argument to an int when possible, since the
// demo remote service mints integer ids; a non-numeric argument is
// passed through as a string for remote services with string ids.
func parseID(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}
