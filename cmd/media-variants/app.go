package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-variants/internal/assetlock"
	"media-variants/internal/database"
	"media-variants/internal/encoder"
	"media-variants/internal/indexer"
	"media-variants/internal/logging"
	"media-variants/internal/orchestrator"
	"media-variants/internal/retry"
	"media-variants/internal/rewrite"
	"media-variants/internal/startup"
	"media-variants/internal/swap"
	"media-variants/internal/variant"
	"media-variants/internal/workers"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *startup.Config
	db        *database.Database
	enc       *encoder.Adapter
	locks     *assetlock.Locker
	sched     *retry.Scheduler
	swapper   *swap.Swapper
	orch      *orchestrator.Orchestrator
	resolver  *rewrite.PathResolver
	publisher *rewrite.Publisher
	indexer   *indexer.Indexer

	vipsStarted bool
}

func newApp(ctx context.Context, cfg *startup.Config) (*app, error) {
	policy, err := rewrite.ParsePolicy(cfg.PublishRewritePolicy)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbStart := time.Now()
	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logging.Debug("Database opened in %v", time.Since(dbStart))

	locks, err := assetlock.New(cfg.LockDir)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}

	a := &app{cfg: cfg, db: db, locks: locks}
	if cfg.VipsEnabled {
		encoder.InitVips()
		a.vipsStarted = encoder.IsVipsAvailable()
	}

	a.enc = encoder.New(encoder.Options{
		FFmpegPath:  cfg.EncoderBinaryPath,
		CwebpPath:   cfg.CwebpPath,
		AvifencPath: cfg.AvifencPath,
		ExecEnabled: cfg.ExecEnabled,
		VipsEnabled: cfg.VipsEnabled,
		Timeout:     cfg.EncodeTimeout,
	})

	a.sched = retry.NewScheduler(db, retry.Config{
		Delay:        cfg.RetryDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		MaxAttempts:  cfg.RetryMaxAttempts,
		PollInterval: cfg.RetryPollInterval,
		Lease:        cfg.RetryLease,
	})
	a.swapper = swap.New(cfg.MediaDir, db, locks)
	a.orch = orchestrator.New(orchestrator.Config{
		MediaDir:        cfg.MediaDir,
		Settings:        cfg.VariantSettings(),
		DeleteOriginals: cfg.DeleteOriginals,
		Order:           cfg.DeliveryOrder(),
	}, a.enc, db, a.sched, a.swapper, locks)

	a.resolver = rewrite.NewPathResolver(cfg.MediaDir, cfg.BaseURL)
	var remover rewrite.Remover
	if cfg.DeleteOriginals {
		remover = a.orch
	}
	a.publisher = rewrite.NewPublisher(db, a.resolver, remover, rewrite.Options{
		Policy:          policy,
		Format:          variant.FormatKey(cfg.PublishRewriteFormat),
		Order:           cfg.DeliveryOrder(),
		DeleteOriginals: cfg.DeleteOriginals,
	})
	a.indexer = indexer.New(db, a.enc, cfg.MediaDir, cfg.ScanInterval)
	return a, nil
}

// runAll runs the orchestrator over ids with the configured worker count and
// returns the results of the runs that started.
func (a *app) runAll(ctx context.Context, ids []int64, opts orchestrator.Options) []runResult {
	n := workers.Batch(a.cfg.Workers, len(ids))
	logging.Debug("Processing %d assets with %d workers", len(ids), n)

	results, ran := workers.Each(ctx, n, ids, func(ctx context.Context, id int64) runResult {
		report, err := a.orch.Run(ctx, id, opts)
		return runResult{ID: id, Report: report, Err: err}
	})
	done := results[:0]
	for i, r := range results {
		if ran[i] {
			done = append(done, r)
		}
	}
	return done
}

// retryRun is the retry worker's entry into the orchestrator.
func (a *app) retryRun(ctx context.Context, assetID int64, attempt int) error {
	report, err := a.orch.Run(ctx, assetID, orchestrator.Options{AllowRetry: true, Attempt: attempt})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logging.Info("Asset %d no longer exists, dropping retry", assetID)
			return nil
		}
		return err
	}
	logging.Info("Retry %d for asset %d: %s", attempt, assetID, report.Outcome)
	return nil
}

func (a *app) Close() error {
	if a.vipsStarted {
		encoder.ShutdownVips()
	}
	return a.db.Close()
}

// withApp builds the app for the duration of fn.
func (c *commandContext) withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logging.Warn("Failed to close: %v", cerr)
		}
	}()
	return fn(a)
}
