// Package database provides the SQLite store behind the derivative pipeline.
//
// It holds four tables:
//   - assets: the media-library rows the pipeline reads and, on a primary
//     swap, repoints
//   - transcode_state: one JSON document per asset describing its variants,
//     errors and retry status
//   - retry_tasks: the durable retry queue, at most one row per asset
//   - documents: content bodies rewritten at publish time
//
// The database uses WAL mode and a busy timeout so the daemon and the CLI
// can share one file. State writes always replace the whole record.
package database
