package rewrite

import (
	"context"
	"fmt"

	"media-variants/internal/database"
	"media-variants/internal/logging"
)

// DocumentStore loads and publishes documents.
type DocumentStore interface {
	GetDocument(ctx context.Context, id int64) (database.Document, error)
	PublishDocument(ctx context.Context, id int64, body *string) error
}

// Remover retires an original once an enabled derivative is confirmed on
// disk, keeping its asset row and state consistent.
type Remover interface {
	RetireOriginal(ctx context.Context, path string) error
}

// PublishResult summarizes a publish.
type PublishResult struct {
	DocumentID int64
	Changed    bool
	Deleted    []string
	Kept       []string
}

// Publisher rewrites a document, persists it and then deletes originals it
// no longer references.
type Publisher struct {
	docs     DocumentStore
	resolver Resolver
	remover  Remover
	opts     Options
}

// NewPublisher returns a Publisher. remover may be nil, which disables
// deletion regardless of opts.
func NewPublisher(docs DocumentStore, resolver Resolver, remover Remover, opts Options) *Publisher {
	if remover == nil {
		opts.DeleteOriginals = false
	}
	return &Publisher{docs: docs, resolver: resolver, remover: remover, opts: opts}
}

// Publish rewrites and publishes document id. Deletions run only after the
// rewritten body is stored.
func (p *Publisher) Publish(ctx context.Context, id int64) (PublishResult, error) {
	result := PublishResult{DocumentID: id}

	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		return result, err
	}

	res, err := Rewrite(doc.Body, p.resolver, p.opts)
	if err != nil {
		return result, fmt.Errorf("document %d: %w", id, err)
	}

	var body *string
	if res.Changed {
		body = &res.Markup
	}
	if err := p.docs.PublishDocument(ctx, id, body); err != nil {
		return result, err
	}
	result.Changed = res.Changed
	logging.Info("Published document %d (rewritten: %v)", id, res.Changed)

	for _, path := range res.DeletionCandidates {
		if err := p.remover.RetireOriginal(ctx, path); err != nil {
			logging.Warn("Kept original %s: %v", path, err)
			result.Kept = append(result.Kept, path)
			continue
		}
		result.Deleted = append(result.Deleted, path)
	}
	return result, nil
}
