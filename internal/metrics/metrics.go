package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_variants_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_variants_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_variants_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_variants_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Encoder metrics
var (
	EncodeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_encode_attempts_total",
			Help: "Encoder backend invocations by format, backend and result (success, failure, unavailable)",
		},
		[]string{"format", "backend", "result"},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_variants_encode_duration_seconds",
			Help:    "Encoder backend duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"format", "backend"},
	)
)

// Pipeline metrics
var (
	OrchestratorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_orchestrator_runs_total",
			Help: "Derivative orchestrator runs by outcome",
		},
		[]string{"outcome"},
	)

	OrchestratorRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_variants_orchestrator_run_duration_seconds",
			Help:    "Duration of a full orchestrator run for one asset",
			Buckets: []float64{0.01, 0.1, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	RetriesScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_retries_scheduled_total",
			Help: "Retry tasks newly scheduled",
		},
	)

	RetriesFiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_retries_fired_total",
			Help: "Retry tasks picked up by the retry worker",
		},
	)

	RetriesCanceledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_retries_canceled_total",
			Help: "Pending retry tasks removed because no retry is needed",
		},
	)

	RetriesExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_retries_exhausted_total",
			Help: "Assets that hit the retry attempt limit",
		},
	)

	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_variants_retry_queue_depth",
			Help: "Number of retry tasks waiting in the queue",
		},
	)

	PrimarySwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_primary_swaps_total",
			Help: "Primary swap attempts by result",
		},
		[]string{"result"},
	)

	OriginalDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_original_deletions_total",
			Help: "Original file deletions by result (deleted, refused, error)",
		},
		[]string{"result"},
	)

	RewritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_rewrites_total",
			Help: "Publish-time document rewrites by result (changed, unchanged)",
		},
		[]string{"result"},
	)

	DeliverySelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_delivery_selections_total",
			Help: "Runtime delivery decisions by served format",
		},
		[]string{"format"},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries after a stale NFS handle",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_filesystem_stale_errors_total",
			Help: "ESTALE errors seen by filesystem operations",
		},
		[]string{"operation"},
	)
)

// Dispatch metrics
var (
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_variants_dispatch_queue_depth",
			Help: "Reprocess jobs waiting for a dispatcher worker",
		},
	)

	DispatchWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_variants_dispatch_wait_seconds",
			Help:    "Time reprocess jobs spent queued before starting",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
)

// Delivery metrics
var (
	MediaBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_media_bytes_served_total",
			Help: "Bytes written to clients by the media endpoint",
		},
	)

	MediaStreamAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_variants_media_stream_aborts_total",
			Help: "Media responses that ended early",
		},
		[]string{"reason"},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_indexer_runs_total",
			Help: "Media directory scans started",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_indexer_errors_total",
			Help: "Media directory scans that failed",
		},
	)

	IndexerAssetsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_variants_indexer_assets_registered_total",
			Help: "Source files newly registered by the indexer",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_variants_indexer_last_run_duration_seconds",
			Help: "Duration of the last media directory scan",
		},
	)
)

// Registry gauges, refreshed by the Collector
var (
	AssetsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_variants_assets_total",
			Help: "Registered assets by media kind",
		},
		[]string{"kind"},
	)

	AssetsPendingRetry = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_variants_assets_pending_retry",
			Help: "Assets whose last run left formats unsatisfied",
		},
	)

	DocumentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_variants_documents_total",
			Help: "Documents by status",
		},
		[]string{"status"},
	)
)

// AppInfo exposes build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "media_variants_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
