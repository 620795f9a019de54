// Package main provides the media-variants command.
//
// media-variants keeps modern derivatives (WebM, AVIF, WebP, poster frames)
// of registered media files in sync with configuration, retries transient
// encoder failures in the background, and rewrites published documents to
// reference the derivatives.
//
// # Commands
//
//   - serve: runs the retry worker, the metrics collector, the HTTP API and
//     the metrics listener under a supervisor tree until SIGINT/SIGTERM; with
//     scan_interval set it also rescans media_dir and processes new files
//   - add <path>...: registers files and processes them immediately
//   - scan [--register-only]: registers new sources under media_dir and
//     processes them
//   - reprocess [--all | <id>...] [--force] [--no-retry]: re-runs assets,
//     fanning out over one worker per CPU (MV_WORKERS overrides)
//   - state <id>: prints an asset and its stored state as JSON
//   - draft <file>: stores an HTML file as a draft document
//   - publish <doc-id>: rewrites a document's media references and publishes it
//   - version: prints build information
//
// Reports print as a table on a terminal and as tab-separated lines
// otherwise. A command naming exactly one asset exits non-zero when that
// asset is missing or is not a supported source.
//
// # Configuration
//
// Defaults are overridden by a YAML file (--config, CONFIG_PATH, or
// media-variants.yaml in the working directory) and then by MV_ environment
// variables, e.g. MV_MEDIA_DIR or MV_ENABLED_FORMATS=avif,webp.
//
// The CLI and a running server may share a database; per-asset lock files
// under lock_dir keep them from processing the same asset at once.
package main
