package main

import (
	"fmt"

	"media-variants/internal/orchestrator"

	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		registerOnly bool
		noRetry      bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Register new files under the media directory and generate their derivatives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app) error {
				result, err := a.indexer.Scan(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Found %d source(s), registered %d new\n", result.Sources, len(result.Registered))
				if registerOnly || len(result.Registered) == 0 {
					return nil
				}

				ids := make([]int64, 0, len(result.Registered))
				for _, asset := range result.Registered {
					ids = append(ids, asset.ID)
				}
				writeReports(out, a.runAll(cmd.Context(), ids, orchestrator.Options{AllowRetry: !noRetry}))
				return cmd.Context().Err()
			})
		},
	}
	cmd.Flags().BoolVar(&registerOnly, "register-only", false, "Register new files without generating derivatives")
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "Do not schedule retries for failed formats")
	return cmd
}
