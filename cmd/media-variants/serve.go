package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"media-variants/internal/handlers"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/memory"
	"media-variants/internal/metrics"
	"media-variants/internal/orchestrator"
	"media-variants/internal/retry"
	"media-variants/internal/startup"
	"media-variants/internal/supervisor"
	"media-variants/internal/workers"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout        = 30 * time.Second
	metricsCollectorPeriod = time.Minute
	metricsShutdownTimeout = 5 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the retry worker, HTTP API and metrics server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			memory.ConfigureFromEnv()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := startup.LogConfig(cfg); err != nil {
				return err
			}

			metrics.InitializeMetrics()
			metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dbStart := time.Now()
			return ctx.withApp(sigCtx, func(a *app) error {
				startup.LogDatabaseInit(time.Since(dbStart))
				startup.LogEncoderInit(cfg, a.vipsStarted)
				return serve(sigCtx, a, startTime)
			})
		},
	}
}

func serve(ctx context.Context, a *app, startTime time.Time) error {
	cfg := a.cfg

	dispatcher := orchestrator.NewDispatcher(a.orch, workers.Size(cfg.Workers), 0)
	h := handlers.New(dispatcher, a.db, a.publisher, a.resolver, handlers.Options{
		RuntimeRewrite: cfg.RuntimeRewriteEnabled,
		Order:          cfg.DeliveryOrder(),
	})
	router := handlers.NewRouter(h)
	startup.LogHTTPRoutes(router)

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddWorkService(retry.NewWorker(a.sched, a.retryRun))
	tree.AddWorkService(dispatcher)
	tree.AddWorkService(metrics.NewCollector(a.db, metricsCollectorPeriod))
	if cfg.ScanInterval > 0 {
		a.indexer.SetOnNew(a.processNew)
		tree.AddWorkService(a.indexer)
	}
	tree.AddAPIService(supervisor.NewHTTPServerService("api-server", newAPIServer(cfg.ListenAddr, router), shutdownTimeout))
	if cfg.MetricsEnabled {
		tree.AddAPIService(supervisor.NewHTTPServerService("metrics-server", newMetricsServer(cfg.MetricsAddr, h), metricsShutdownTimeout))
	}

	errCh := tree.ServeBackground(ctx)

	startup.LogServerStarted(startup.ServerConfig{
		ListenAddr:      cfg.ListenAddr,
		MetricsAddr:     cfg.MetricsAddr,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	var err error
	select {
	case <-ctx.Done():
		startup.LogShutdownInitiated("signal")
		err = <-errCh
	case err = <-errCh:
		startup.LogShutdownInitiated("supervisor stopped")
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn("Service did not stop in time: %s", svc.Name)
		}
	}
	startup.LogShutdownComplete()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// processNew runs the orchestrator on an asset the indexer just registered.
func (a *app) processNew(ctx context.Context, asset mediatypes.Asset) {
	report, err := a.orch.Run(ctx, asset.ID, orchestrator.Options{AllowRetry: true})
	if err != nil {
		logging.Error("Failed to process %s: %v", asset.Path, err)
		return
	}
	logging.Info("Processed %s: %s", asset.Path, report.Outcome)
}

// newAPIServer has no write timeout so large media responses can stream.
func newAPIServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

func newMetricsServer(addr string, h *handlers.Handlers) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}
