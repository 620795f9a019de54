package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"media-variants/internal/handlers"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/orchestrator"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var noRetry bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register media files and generate their derivatives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app) error {
				results := make([]runResult, 0, len(args))
				for _, arg := range args {
					asset, err := a.register(cmd.Context(), arg)
					if err != nil {
						results = append(results, runResult{Report: orchestrator.Report{Path: arg}, Err: err})
						continue
					}
					report, err := a.orch.Run(cmd.Context(), asset.ID, orchestrator.Options{AllowRetry: !noRetry})
					results = append(results, runResult{ID: asset.ID, Report: report, Err: err})
				}
				writeReports(cmd.OutOrStdout(), results)
				return singleFailure(results)
			})
		},
	}
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "Do not schedule retries for failed formats")
	return cmd
}

// register upserts path into the asset registry with its probed size.
func (a *app) register(ctx context.Context, path string) (mediatypes.Asset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return mediatypes.Asset{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return mediatypes.Asset{}, err
	}
	if info.IsDir() {
		return mediatypes.Asset{}, fmt.Errorf("%s is a directory", path)
	}

	asset := mediatypes.Asset{
		Path:     abs,
		MimeType: mediatypes.GetMimeType(filepath.Ext(abs)),
	}
	if kind := mediatypes.SourceKind(abs, asset.MimeType); kind != mediatypes.KindOther {
		w, h, err := a.enc.Probe(ctx, abs, kind)
		if err != nil {
			logging.Debug("Could not probe %s: %v", abs, err)
		} else {
			asset.Width, asset.Height = w, h
		}
	}
	return a.db.UpsertAsset(ctx, asset)
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	var (
		all     bool
		force   bool
		noRetry bool
	)

	cmd := &cobra.Command{
		Use:   "reprocess [--all | <id>...]",
		Short: "Re-run derivative generation for assets",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all cannot be combined with asset ids")
			}
			if !all && len(args) == 0 {
				return errors.New("specify asset ids or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				if all {
					if ids, err = a.db.ListAssetIDs(cmd.Context()); err != nil {
						return err
					}
				}

				opts := orchestrator.Options{AllowRetry: !noRetry, Force: force}
				done := a.runAll(cmd.Context(), ids, opts)

				writeReports(cmd.OutOrStdout(), done)
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if !all {
					return singleFailure(done)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reprocess every registered asset")
	cmd.Flags().BoolVar(&force, "force", false, "Re-encode formats that already exist")
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "Do not schedule retries for failed formats")
	return cmd
}

// singleFailure turns a lone missing or unsupported asset into an error so
// the process exits non-zero.
func singleFailure(results []runResult) error {
	if len(results) != 1 {
		return nil
	}
	r := results[0]
	if r.Err != nil {
		return r.Err
	}
	return r.Report.Err()
}

func newStateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "state <id>",
		Short: "Print an asset and its derivative state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app) error {
				asset, err := a.db.GetAsset(cmd.Context(), id)
				if err != nil {
					return err
				}
				state, err := a.db.GetState(cmd.Context(), id)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(handlers.StateResponse{Asset: asset, State: state}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
