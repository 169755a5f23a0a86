package cli

import (
	"encoding/json"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
)

func newCreateCmd() *cobra.Command {
	var dataJSON string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())

			var data record.Record
			if dataJSON != "" {
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return err
				}
			} else if isInteractiveTTY() {
				form, err := promptForRecord()
				if err != nil {
					return err
				}
				data = form
			} else {
				data = record.Record{}
			}

			created, err := app.Mutator.Create(cmd.Context(), data, query.Params{})
			if err != nil {
				return err
			}
			return printResult(cmd, created)
		},
	}

	cmd.Flags().StringVar(&dataJSON, "data", "", "JSON record body")
	return cmd
}

func promptForRecord() (record.Record, error) {
	var title string
	var done bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&title),
			huh.NewConfirm().Title("Done?").Value(&done),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}
	return record.Record{"title": title, "done": done}, nil
}

func isInteractiveTTY() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
