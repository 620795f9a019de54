package handlers

import (
	"context"
	"time"

	"media-variants/internal/delivery"
	"media-variants/internal/mediatypes"
	"media-variants/internal/orchestrator"
	"media-variants/internal/rewrite"
	"media-variants/internal/streaming"
	"media-variants/internal/variant"
)

// Queue accepts orchestrator runs for background execution.
type Queue interface {
	Submit(assetID int64, opts orchestrator.Options) (orchestrator.Job, error)
}

// StateStore reads assets, their state and the retry queue.
type StateStore interface {
	GetAsset(ctx context.Context, id int64) (mediatypes.Asset, error)
	GetState(ctx context.Context, assetID int64) (variant.State, error)
	CountRetries(ctx context.Context) (map[string]int, error)
}

// Publisher publishes documents.
type Publisher interface {
	Publish(ctx context.Context, id int64) (rewrite.PublishResult, error)
}

// Options configures media delivery.
type Options struct {
	// RuntimeRewrite enables Accept-based derivative selection on /media/.
	RuntimeRewrite bool
	Order          []variant.FormatKey
	// Stream bounds /media/ responses; the zero value uses streaming.DefaultConfig.
	Stream streaming.Config
}

type Handlers struct {
	queue     Queue
	store     StateStore
	publisher Publisher
	resolver  *rewrite.PathResolver
	selector  *delivery.Selector
	opts      Options
	stream    streaming.Config
	started   time.Time
}

func New(queue Queue, store StateStore, publisher Publisher, resolver *rewrite.PathResolver, opts Options) *Handlers {
	stream := opts.Stream
	if stream == (streaming.Config{}) {
		stream = streaming.DefaultConfig()
	}
	return &Handlers{
		queue:     queue,
		store:     store,
		publisher: publisher,
		resolver:  resolver,
		selector:  delivery.NewSelector(resolver),
		opts:      opts,
		stream:    stream,
		started:   time.Now(),
	}
}
