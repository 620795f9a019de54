package metrics

import (
	"context"
	"time"

	"media-variants/internal/logging"
)

// StatsProvider reports registry counts.
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
	UpdateDBMetrics()
}

// Stats holds registry counts.
type Stats struct {
	Images       int
	Videos       int
	Other        int
	PendingRetry int
	Drafts       int
	Published    int
}

// Collector periodically refreshes registry gauges. It implements
// suture.Service.
type Collector struct {
	provider StatsProvider
	interval time.Duration
}

// NewCollector creates a new metrics collector.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{provider: provider, interval: interval}
}

// Serve collects immediately and then on every tick until ctx is canceled.
func (c *Collector) Serve(ctx context.Context) error {
	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Collector) String() string {
	return "metrics-collector"
}

func (c *Collector) collect(ctx context.Context) {
	if c.provider == nil {
		return
	}
	c.provider.UpdateDBMetrics()

	stats, err := c.provider.GetStats(ctx)
	if err != nil {
		logging.Warn("Failed to collect registry stats: %v", err)
		return
	}

	AssetsTotal.WithLabelValues("image").Set(float64(stats.Images))
	AssetsTotal.WithLabelValues("video").Set(float64(stats.Videos))
	AssetsTotal.WithLabelValues("other").Set(float64(stats.Other))
	AssetsPendingRetry.Set(float64(stats.PendingRetry))
	DocumentsTotal.WithLabelValues("draft").Set(float64(stats.Drafts))
	DocumentsTotal.WithLabelValues("published").Set(float64(stats.Published))

	logging.Debug("Metrics collected: images=%d, videos=%d, pending=%d",
		stats.Images, stats.Videos, stats.PendingRetry)
}
