// Package metrics provides Prometheus instrumentation for the media-variants application.
//
// All metrics are prefixed with "media_variants_" and registered on the default
// registry through promauto, so importing the package is enough to expose them.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal / HTTPRequestDuration: API and media delivery traffic
//
// ## Database Metrics
//
//   - DBQueryTotal / DBQueryDuration: per-operation query counts and latency
//   - DBConnectionsOpen: open SQLite connections
//
// ## Encoder Metrics
//
//   - EncodeAttemptsTotal: encoder backend invocations by format, backend, and result
//   - EncodeDuration: backend wall-clock time by format and backend
//
// ## Pipeline Metrics
//
//   - OrchestratorRunsTotal: orchestrator runs by outcome
//   - RetriesScheduledTotal / RetriesFiredTotal / RetriesCanceledTotal / RetriesExhaustedTotal
//   - RetryQueueDepth: pending retry tasks
//   - PrimarySwapsTotal / OriginalDeletionsTotal
//   - RewritesTotal / DeliverySelectionsTotal
//
// ## Filesystem Metrics
//
//   - FilesystemRetryAttempts / FilesystemStaleErrors: NFS stale handle handling
//
// InitializeMetrics pre-populates the label combinations that are known up front.
package metrics
