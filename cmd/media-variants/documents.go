package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-variants/internal/startup"

	"github.com/spf13/cobra"
)

func newDraftCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "draft <file>",
		Short: "Store an HTML file as a draft document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			return ctx.withApp(cmd.Context(), func(a *app) error {
				id, err := a.db.CreateDocument(cmd.Context(), title, string(body))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created draft document %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Document title (default: file name)")
	return cmd
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <doc-id>",
		Short: "Rewrite media references in a document and publish it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app) error {
				res, err := a.publisher.Publish(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				state := "unchanged"
				if res.Changed {
					state = "rewritten"
				}
				fmt.Fprintf(out, "Published document %d (%s)\n", res.DocumentID, state)
				for _, p := range res.Deleted {
					fmt.Fprintf(out, "  deleted %s\n", p)
				}
				for _, p := range res.Kept {
					fmt.Fprintf(out, "  kept    %s\n", p)
				}
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "media-variants %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
}
