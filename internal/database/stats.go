package database

import (
	"context"
	"strings"
	"time"

	"media-variants/internal/metrics"
)

// GetStats counts assets by kind, assets pending retry and documents by
// status for the metrics collector.
func (d *Database) GetStats(ctx context.Context) (metrics.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stats metrics.Stats

	rows, err := d.db.QueryContext(ctx, `SELECT mime_type, COUNT(*) FROM assets GROUP BY mime_type`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var mime string
		var n int
		if err = rows.Scan(&mime, &n); err != nil {
			rows.Close()
			return stats, err
		}
		switch {
		case strings.HasPrefix(mime, "image/"):
			stats.Images += n
		case strings.HasPrefix(mime, "video/"):
			stats.Videos += n
		default:
			stats.Other += n
		}
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return stats, err
	}
	rows.Close()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transcode_state WHERE pending_retry = 1),
			(SELECT COUNT(*) FROM documents WHERE status = ?),
			(SELECT COUNT(*) FROM documents WHERE status = ?)
	`, StatusDraft, StatusPublished).Scan(&stats.PendingRetry, &stats.Drafts, &stats.Published)
	return stats, err
}
