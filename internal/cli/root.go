// Package cli is the entry point for the edgesync demo command-line
// tool: a cobra-based CRUD surface over the library's Mutator, backed by
// a seeded in-memory remote service, demonstrating optimistic local
// writes and background remote confirmation from the terminal.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgesync/edgesync/config"
	"github.com/edgesync/edgesync/internal/cliapp"
	"github.com/edgesync/edgesync/internal/version"
)

type rootFlags struct {
	baseURL string
	timeout time.Duration
	jq      string
}

var flags rootFlags

type appKey struct{}

func appFromContext(ctx context.Context) *cliapp.App {
	app, _ := ctx.Value(appKey{}).(*cliapp.App)
	return app
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "edgesync",
		Short:         "Demo client for an offline-capable, optimistic-replication record store",
		Long:          "edgesync drives a seeded in-memory remote collection through the Engine/Replicator/Mutator stack, demonstrating optimistic local writes that survive disconnection and reconcile on reconnect.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{BaseURL: flags.baseURL, Timeout: flags.timeout})
			if err != nil {
				return err
			}

			app, err := cliapp.New(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "Remote base URL override")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "Remote call timeout override")
	cmd.PersistentFlags().StringVar(&flags.jq, "jq", "", "Filter JSON output through a jq expression")

	cmd.AddCommand(newFindCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newPatchCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printResult(cmd *cobra.Command, v any) error {
	out, err := renderJSON(v, flags.jq)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
