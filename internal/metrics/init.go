package metrics

// Outcome and format label values known up front. Kept as plain strings so this
// package stays free of internal imports.
var (
	knownOutcomes = []string{
		"success", "partial", "failed", "pending", "noop",
		"environment-failure", "skipped-missing-source", "skipped-unsupported",
	}
	knownFormats  = []string{"webm_vp9", "webm_av1", "avif", "webp", "poster"}
	knownBackends = []string{"vips", "cwebp", "avifenc", "ffmpeg"}
)

// InitializeMetrics pre-populates expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup.
func InitializeMetrics() {
	for _, outcome := range knownOutcomes {
		OrchestratorRunsTotal.WithLabelValues(outcome)
	}

	for _, format := range knownFormats {
		for _, backend := range knownBackends {
			for _, result := range []string{"success", "failure", "unavailable"} {
				EncodeAttemptsTotal.WithLabelValues(format, backend, result)
			}
		}
	}

	for _, result := range []string{"promoted", "refused", "error"} {
		PrimarySwapsTotal.WithLabelValues(result)
	}
	for _, result := range []string{"deleted", "refused", "error"} {
		OriginalDeletionsTotal.WithLabelValues(result)
	}
	for _, result := range []string{"changed", "unchanged"} {
		RewritesTotal.WithLabelValues(result)
	}
	for _, format := range append([]string{"original"}, knownFormats...) {
		DeliverySelectionsTotal.WithLabelValues(format)
	}
	for _, reason := range []string{"client_gone", "timeout", "idle", "write_error"} {
		MediaStreamAborts.WithLabelValues(reason)
	}
	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
}

// SetAppInfo records build information.
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
